package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Column names of the fixed record fields.
const (
	ColIndex            = "index"
	ColNickname         = "nickname"
	ColRole             = "role"
	ColFaction          = "faction"
	ColDaysSinceJoin    = "days_since_join"
	ColWeeklyActivity   = "weekly_activity"
	ColMartialRealm     = "martial_realm"
	ColExplorationSkill = "exploration_skill"
	ColTechMastery      = "tech_mastery"
)

// FixedColumns is the canonical order of the fixed fields. Parser, store and
// CSV export all use it; nothing else spells the list out.
var FixedColumns = [...]string{
	ColIndex,
	ColNickname,
	ColRole,
	ColFaction,
	ColDaysSinceJoin,
	ColWeeklyActivity,
	ColMartialRealm,
	ColExplorationSkill,
	ColTechMastery,
}

// IsFixedColumn reports whether name is one of FixedColumns.
func IsFixedColumn(name string) bool {
	for _, c := range FixedColumns {
		if c == name {
			return true
		}
	}
	return false
}

// ErrFixedColumn is returned when a fixed field name is used as an extra.
var ErrFixedColumn = errors.New("column name is reserved for a fixed field")

// Record is one guild member as read from a profile screenshot.
//
// Index is assigned by the caller (batch position), never read from the
// image. Extras holds any additional columns in first-seen order and never
// contains a fixed column name.
type Record struct {
	Index            int     `json:"index"`
	Nickname         string  `json:"nickname"`
	Role             string  `json:"role"`
	Faction          string  `json:"faction"`
	DaysSinceJoin    string  `json:"days_since_join"`
	WeeklyActivity   string  `json:"weekly_activity"`
	MartialRealm     string  `json:"martial_realm"`
	ExplorationSkill string  `json:"exploration_skill"`
	TechMastery      string  `json:"tech_mastery"`
	Extras           *Extras `json:"extras"`
}

// Field returns the value of column name, looking at fixed fields first and
// then extras.
func (r Record) Field(name string) (string, bool) {
	switch name {
	case ColIndex:
		return strconv.Itoa(r.Index), true
	case ColNickname:
		return r.Nickname, true
	case ColRole:
		return r.Role, true
	case ColFaction:
		return r.Faction, true
	case ColDaysSinceJoin:
		return r.DaysSinceJoin, true
	case ColWeeklyActivity:
		return r.WeeklyActivity, true
	case ColMartialRealm:
		return r.MartialRealm, true
	case ColExplorationSkill:
		return r.ExplorationSkill, true
	case ColTechMastery:
		return r.TechMastery, true
	}
	return r.Extras.Get(name)
}

// SetField assigns column name. Unknown names go to Extras. The index column
// must hold an integer; an empty value means 0.
func (r *Record) SetField(name, value string) error {
	switch name {
	case ColIndex:
		idx, err := ParseIndex(value)
		if err != nil {
			return err
		}
		r.Index = idx
	case ColNickname:
		r.Nickname = value
	case ColRole:
		r.Role = value
	case ColFaction:
		r.Faction = value
	case ColDaysSinceJoin:
		r.DaysSinceJoin = value
	case ColWeeklyActivity:
		r.WeeklyActivity = value
	case ColMartialRealm:
		r.MartialRealm = value
	case ColExplorationSkill:
		r.ExplorationSkill = value
	case ColTechMastery:
		r.TechMastery = value
	default:
		if r.Extras == nil {
			r.Extras = NewExtras()
		}
		r.Extras.Set(name, value)
	}
	return nil
}

// ParseIndex reads an index cell. Surrounding space is ignored and an empty
// cell is 0.
func ParseIndex(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	idx, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", value, err)
	}
	return idx, nil
}

// Validate checks that no extras key shadows a fixed column.
func (r Record) Validate() error {
	for _, k := range r.Extras.Keys() {
		if IsFixedColumn(k) {
			return fmt.Errorf("%w: %q", ErrFixedColumn, k)
		}
	}
	return nil
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	r.Extras = r.Extras.Clone()
	return r
}

// Empty reports whether every fixed text field is blank.
func (r Record) Empty() bool {
	for _, c := range FixedColumns[1:] {
		if v, _ := r.Field(c); v != "" {
			return false
		}
	}
	return true
}
