package pg

import (
	"github.com/lib/pq"
)

// nilStr converts a zero-value Go string to SQL NULL at the query boundary,
// matching the teacher's tracing-store column idiom.
func nilStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func pqStringArray(ss []string) interface{} {
	return pq.Array(ss)
}

func pqInt64Array(xs []int64) interface{} {
	return pq.Array(xs)
}

func scanStringArray(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	arr := pq.StringArray{}
	if err := arr.Scan(raw); err != nil {
		return nil
	}
	return []string(arr)
}
