package openstack

import (
	"testing"
)

func TestParseShell(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "user show",
			input: `domain_id="default"
email="user1@example.com"
enabled="True"
id="user1_id"
name="user1"
`,
			want: map[string]string{
				"domain_id": "default", "email": "user1@example.com",
				"enabled": "True", "id": "user1_id", "name": "user1",
			},
		},
		{
			name:  "escaped quotes and backslashes",
			input: `description="say \"hi\" to C:\\temp"` + "\n",
			want:  map[string]string{"description": `say "hi" to C:\temp`},
		},
		{
			name:  "multiline value",
			input: "description=\"line one\nline two\"\nid=\"x\"\n",
			want:  map[string]string{"description": "line one\nline two", "id": "x"},
		},
		{
			name:  "empty value and blank lines",
			input: "\nname=\"\"\n\n",
			want:  map[string]string{"name": ""},
		},
		{
			name:    "unquoted value",
			input:   "id=abc\n",
			wantErr: true,
		},
		{
			name:    "unterminated value",
			input:   "id=\"abc\n",
			wantErr: true,
		},
		{
			name:    "not a key value line",
			input:   "Some warning from the client\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseShell(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d fields, got %d: %v", len(tt.want), len(got), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Field %s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	input := `"ID","Name","Domain ID","Enabled"
"user1_id","user1","domain1_id",True
"user2_id","user, two","default",False
`
	rows, err := ParseCSV(input)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["domain_id"] != "domain1_id" {
		t.Errorf("Expected snake_case header, got row %v", rows[0])
	}
	if rows[1]["name"] != "user, two" {
		t.Errorf("Expected quoted comma preserved, got %q", rows[1]["name"])
	}
	if rows[1]["enabled"] != "False" {
		t.Errorf("Expected unquoted field, got %q", rows[1]["enabled"])
	}

	empty, err := ParseCSV("")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected no rows for empty output, got %v, %v", empty, err)
	}

	if _, err := ParseCSV("\"a\",\"b\"\n\"1\"\n"); err == nil {
		t.Error("Expected error for short row")
	}
}

func TestParseValue(t *testing.T) {
	got := ParseValue("2026-10-16T12:00:00+0000\ntoken_id\n\nproject_id\nuser_id\n")
	if len(got) != 4 || got[1] != "token_id" || got[3] != "user_id" {
		t.Errorf("Unexpected values: %v", got)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"True": true, "true": true, "False": false, "": false} {
		if got := ParseBool(in); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
