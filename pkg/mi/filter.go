package mi

import (
	"iter"
	"slices"
)

// Filter yields the records whose type is one of types, in arrival order.
func Filter(records []Record, types ...RecordType) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range records {
			if slices.Contains(types, rec.Type) && !yield(rec) {
				return
			}
		}
	}
}

// Results yields only the result records.
func Results(records []Record) iter.Seq[Record] {
	return Filter(records, RecordResult)
}

// Payloads returns the trimmed payloads of the stream records of type typ.
func Payloads(records []Record, typ RecordType) []string {
	var lines []string
	for rec := range Filter(records, typ) {
		lines = append(lines, rec.Text())
	}
	return lines
}

// SingleResult returns the one result record in records. Zero or several
// result records break the exchange contract and yield a *ProtocolError.
func SingleResult(command string, records []Record) (Record, error) {
	results := slices.Collect(Results(records))
	switch len(results) {
	case 1:
		return results[0], nil
	case 0:
		return Record{}, &ProtocolError{Command: command, Reason: "no result record"}
	default:
		return Record{}, &ProtocolError{Command: command, Record: &results[1], Reason: "more than one result record"}
	}
}
