package cache

import (
	"testing"
	"time"
)

func TestEncode_RecordsEncoding(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Encoding
	}{
		{"map", map[string]any{"a": 1}, EncodingJSON},
		{"slice", []string{"x", "y"}, EncodingJSON},
		{"time", time.Unix(1700000000, 0), EncodingMsgpack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, enc, err := encode(tt.value)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if enc != tt.want {
				t.Fatalf("encoding = %s, want %s", enc, tt.want)
			}
			var sink any
			got, err := decode(data, &sink)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("decoded tag = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode_UnknownEncoding(t *testing.T) {
	var v any
	if _, err := decode([]byte{0xc0}, &v); err == nil {
		t.Fatal("expected error for nil envelope")
	}
}
