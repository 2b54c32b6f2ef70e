package syncer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/connsync/pkg/client"
	"github.com/Sternrassler/connsync/pkg/records"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		item   client.RawItem
		want   records.Record
		wantOK bool
	}{
		{
			name: "numeric created at",
			item: client.RawItem{
				CreatedAt: json.RawMessage(`1700000000000`),
				Member:    &client.MemberResult{FirstName: "Ada", LastName: "Lovelace", Headline: "Analyst"},
			},
			want:   records.Record{FirstName: "Ada", LastName: "Lovelace", Headline: "Analyst", CreatedAt: "1700000000000"},
			wantOK: true,
		},
		{
			name: "missing created at",
			item: client.RawItem{
				Member: &client.MemberResult{FirstName: "Ada"},
			},
			want:   records.Record{FirstName: "Ada"},
			wantOK: true,
		},
		{
			name: "headline only",
			item: client.RawItem{
				CreatedAt: json.RawMessage(`"x"`),
				Member:    &client.MemberResult{Headline: "Recruiter"},
			},
			want:   records.Record{Headline: "Recruiter", CreatedAt: "x"},
			wantOK: true,
		},
		{
			name:   "no member",
			item:   client.RawItem{CreatedAt: json.RawMessage(`5`)},
			wantOK: false,
		},
		{
			name: "blank member",
			item: client.RawItem{
				CreatedAt: json.RawMessage(`5`),
				Member:    &client.MemberResult{},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.item)
			if ok != tt.wantOK {
				t.Fatalf("Normalize() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunRequest_Validate(t *testing.T) {
	valid := RunRequest{RunID: "r", Platform: "linkedin", Tenant: "acme", Subject: "jdoe"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	err := RunRequest{Platform: "linkedin"}.Validate()
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Validate() error = %v, want ErrInvalidRequest", err)
	}
	for _, field := range []string{"RunID", "Tenant", "Subject"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should name %s", err, field)
		}
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Error("Run IDs must be unique")
	}
	if len(a) != 36 {
		t.Errorf("NewRunID() = %q, want a UUID", a)
	}
	if a > b {
		t.Errorf("Run IDs should be time ordered: %s > %s", a, b)
	}
}
