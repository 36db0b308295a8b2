// Package roster holds guild member records: the parser that turns OCR text
// into a Record, the ordered Store that collects them, and CSV export and
// import over the store's column set.
//
// # Columns
//
// FixedColumns lists the nine fixed fields in export order. Everything else
// lives in a record's Extras, an insertion-ordered map. The store's column
// set is FixedColumns followed by extra columns in first-seen order; a
// record lacking an extra exports an empty cell for it.
//
// # Parsing
//
// Parse is a heuristic. It anchors each field on the label printed on the
// Korean profile card (닉네임, 직책, 문파, 가입일수, 이번주 활약도, 무공
// 경지, 탐색 숙련도, 기술 조예) and takes the value after it. Unmatched fields
// stay empty; a text with no recognizable field still yields a record,
// together with a *ParseWarning.
package roster
