package roster

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func fullRecord(index int) Record {
	return Record{
		Index:            index,
		Nickname:         "홍길동",
		Role:             "문주",
		Faction:          "청룡문",
		DaysSinceJoin:    "10일",
		WeeklyActivity:   "4500",
		MartialRealm:     "7.5단계",
		ExplorationSkill: "88",
		TechMastery:      "91",
		Extras:           ExtrasOf("memo", "says \"hi\", twice", "server", "KR-2"),
	}
}

func assertSameRecord(t *testing.T, got, want Record) {
	t.Helper()
	for _, col := range FixedColumns {
		g, _ := got.Field(col)
		w, _ := want.Field(col)
		if g != w {
			t.Errorf("%s: got %q, want %q", col, g, w)
		}
	}
	if !got.Extras.Equal(want.Extras) {
		t.Errorf("extras: got %v, want %v", got.Extras.Keys(), want.Extras.Keys())
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	s := NewStore()
	s.Append(fullRecord(1))
	s.Append(Record{Index: 2, Nickname: "Hero", Extras: ExtrasOf("server", "KR-1")})

	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	table, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if !reflect.DeepEqual(table.Extras, []string{"memo", "server"}) {
		t.Errorf("extra columns: got %v, want [memo server]", table.Extras)
	}
	if len(table.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(table.Records))
	}
	assertSameRecord(t, table.Records[0], fullRecord(1))
	// Columns introduced by other records come back as empty extras
	assertSameRecord(t, table.Records[1], Record{Index: 2, Nickname: "Hero", Extras: ExtrasOf("memo", "", "server", "KR-1")})
}

func TestCSV_RoundTripEmptyExtra(t *testing.T) {
	rec := Record{Index: 3, Nickname: "Hero", Extras: ExtrasOf("note", "", "guild", "청운각")}

	s := NewStore()
	if err := s.Append(rec); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	table, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("records: got %d, want 1", len(table.Records))
	}
	got := table.Records[0]
	assertSameRecord(t, got, rec)
	if v, ok := got.Extras.Get("note"); !ok || v != "" {
		t.Errorf("note: got (%q, %v), want (\"\", true)", v, ok)
	}
}

func TestCSV_Header(t *testing.T) {
	s := NewStore()
	s.Append(Record{Index: 1})
	s.Append(Record{Index: 2, Extras: ExtrasOf("new_col", "v")})

	var buf bytes.Buffer
	s.WriteCSV(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	wantHeader := strings.Join(FixedColumns[:], ",") + ",new_col"
	if lines[0] != wantHeader {
		t.Errorf("header: got %q, want %q", lines[0], wantHeader)
	}
	if lines[1] != "1,,,,,,,,," {
		t.Errorf("first row: got %q, want empty cells including new_col", lines[1])
	}
}

func TestReadCSV_UnknownColumnsAndMissingIndex(t *testing.T) {
	in := "nickname,guild_note,index,role\nHero,veteran,,Leader\nShort\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(table.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(table.Records))
	}

	first := table.Records[0]
	if first.Index != 0 || first.Nickname != "Hero" || first.Role != "Leader" {
		t.Errorf("first: got %+v", first)
	}
	if v, _ := first.Extras.Get("guild_note"); v != "veteran" {
		t.Errorf("guild_note: got %q, want veteran", v)
	}

	second := table.Records[1]
	if second.Nickname != "Short" || second.Role != "" {
		t.Errorf("short row: got %+v", second)
	}
	if v, ok := second.Extras.Get("guild_note"); !ok || v != "" {
		t.Errorf("short row guild_note: got (%q, %v), want (\"\", true)", v, ok)
	}
}

func TestReadCSV_InvalidIndex(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("index,nickname\nabc,Hero\n"))
	if err == nil || !strings.Contains(err.Error(), "row 2") {
		t.Errorf("error: got %v, want invalid index on row 2", err)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(table.Records) != 0 || len(table.Extras) != 0 {
		t.Errorf("empty input: got %+v", table)
	}
}

func TestReadCSV_ByteOrderMarks(t *testing.T) {
	plain := "index,nickname\n1,홍길동\n"

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(plain)
	if err != nil {
		t.Fatalf("encode UTF-16: %v", err)
	}

	inputs := map[string]string{
		"utf8 bom":  "\xEF\xBB\xBF" + plain,
		"utf16 bom": utf16,
		"no bom":    plain,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			table, err := ReadCSV(strings.NewReader(in))
			if err != nil {
				t.Fatalf("ReadCSV failed: %v", err)
			}
			if len(table.Records) != 1 {
				t.Fatalf("records: got %d, want 1", len(table.Records))
			}
			rec := table.Records[0]
			if rec.Index != 1 || rec.Nickname != "홍길동" {
				t.Errorf("record: got %+v", rec)
			}
			if len(table.Extras) != 0 {
				t.Errorf("BOM leaked into header: %v", table.Extras)
			}
		})
	}
}

func TestStore_LoadKeepsColumns(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("index,nickname,server,memo\n1,A,,\n2,B,KR,\n"))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	s := NewStore()
	n, err := s.Load(table)
	if err != nil || n != 2 {
		t.Fatalf("Load: got (%d, %v), want (2, nil)", n, err)
	}
	cols := s.Columns()
	if got := cols[len(FixedColumns):]; !reflect.DeepEqual(got, []string{"server", "memo"}) {
		t.Errorf("extra columns: got %v, want [server memo]", got)
	}
}

func TestStore_LoadDuplicate(t *testing.T) {
	table, _ := ReadCSV(strings.NewReader("index,nickname\n1,A\n1,B\n"))

	s := NewStore()
	n, err := s.Load(table)
	if !errors.Is(err, ErrDuplicateIndex) {
		t.Errorf("error: got %v, want ErrDuplicateIndex", err)
	}
	if n != 0 || s.Len() != 0 {
		t.Errorf("loaded: got (%d, len %d), want nothing", n, s.Len())
	}
}

func TestStore_LoadCollisionIsAtomic(t *testing.T) {
	s := NewStore()
	if err := s.Append(Record{Index: 2, Nickname: "Kept"}); err != nil {
		t.Fatal(err)
	}
	table, err := ReadCSV(strings.NewReader("index,nickname,memo\n1,A,x\n2,B,y\n"))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	n, err := s.Load(table)
	if !errors.Is(err, ErrDuplicateIndex) {
		t.Errorf("error: got %v, want ErrDuplicateIndex", err)
	}
	if n != 0 || s.Len() != 1 {
		t.Errorf("after failed load: got (%d, len %d), want (0, len 1)", n, s.Len())
	}
	if _, ok := s.Get(1); ok {
		t.Error("record 1 was appended")
	}
	if got := s.Columns(); len(got) != len(FixedColumns) {
		t.Errorf("columns: got %v, want only the fixed ones", got)
	}
}

func TestStore_SaveAndOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")

	s := NewStore()
	s.Append(fullRecord(7))
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	opened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	rec, ok := opened.Get(7)
	if !ok {
		t.Fatal("record 7 missing after reopen")
	}
	assertSameRecord(t, rec, fullRecord(7))

	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenFile(missing): got %v, want os.ErrNotExist", err)
	}
}
