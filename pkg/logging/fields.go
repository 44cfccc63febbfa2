package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Uint32(key string, value uint32) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

func BucketHash(hexHash string) Field {
	return String("bucket", hexHash)
}

func Path(p string) Field {
	return String("path", p)
}

func LedgerSeq(seq uint32) Field {
	return Uint32("ledger_seq", seq)
}

func LevelIndex(i int) Field {
	return Int("level", i)
}

func Variant(name string) Field {
	return String("variant", name)
}

func Records(n uint64) Field {
	return Uint64("records", n)
}

func Bytes(n uint64) Field {
	return Uint64("bytes", n)
}
