package authguard_test

import (
	"testing"
	"time"

	"github.com/bluescreen10/authguard"
)

func TestCodecs(t *testing.T) {
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload := []byte(`{"token":"abc","username":"ana"}`)

	for name, codec := range map[string]authguard.Codec{
		"gob":  authguard.GobCodec{},
		"json": authguard.JSONCodec{},
	} {
		t.Run(name, func(t *testing.T) {
			data, err := codec.Encode(createdAt, payload)
			if err != nil {
				t.Fatal(err)
			}

			gotCreatedAt, gotPayload, err := codec.Decode(data)
			if err != nil {
				t.Fatal(err)
			}

			if !gotCreatedAt.Equal(createdAt) {
				t.Fatalf("expected '%s' got '%s'", createdAt, gotCreatedAt)
			}

			sess, err := authguard.ParseSession(gotPayload)
			if err != nil {
				t.Fatal(err)
			}
			if sess.GetString("username") != "ana" {
				t.Fatalf("expected 'ana' got '%s'", sess.GetString("username"))
			}
		})
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	if _, _, err := (authguard.GobCodec{}).Decode([]byte("garbage")); err == nil {
		t.Fatal("expected gob decode error")
	}
	if _, _, err := (authguard.JSONCodec{}).Decode([]byte("garbage")); err == nil {
		t.Fatal("expected json decode error")
	}
}
