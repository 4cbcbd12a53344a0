package model

import (
	"encoding/json"
	"testing"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		in     string
		want   Repository
		wantOK bool
	}{
		{"octo/hello", Repository{Owner: "octo", Name: "hello"}, true},
		{" octo / hello ", Repository{Owner: "octo", Name: "hello"}, true},
		{"octo", Repository{}, false},
		{"/hello", Repository{}, false},
		{"octo/", Repository{}, false},
		{"a/b/c", Repository{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRepository(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRepository(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSourceRecordDecode(t *testing.T) {
	payload := `[
		{"name": "pip:requests", "versionInfo": "2.31.0"},
		{"name": "mylib", "versionInfo": null},
		{"name": "nover"},
		{"name": "numeric", "versionInfo": 2},
		{"name": "npm:lodash", "versionInfo": "4.17.21",
		 "externalRefs": [
			{"referenceCategory": "SECURITY", "referenceType": "cpe23Type", "referenceLocator": "cpe:2.3:a:lodash"},
			{"referenceCategory": "PACKAGE-MANAGER", "referenceType": "purl", "referenceLocator": "pkg:npm/lodash@4.17.21"}
		 ]}
	]`

	var recs []SourceRecord
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("decoded %d records, want 5", len(recs))
	}

	if !recs[0].Version.Valid || recs[0].Version.Value != "2.31.0" {
		t.Errorf("recs[0].Version = %+v, want valid 2.31.0", recs[0].Version)
	}
	if recs[1].Version.Valid {
		t.Errorf("null versionInfo should decode as absent, got %+v", recs[1].Version)
	}
	if recs[2].Version.Valid {
		t.Errorf("missing versionInfo should decode as absent, got %+v", recs[2].Version)
	}
	if !recs[3].Version.Valid || recs[3].Version.Value != "2" {
		t.Errorf("numeric versionInfo = %+v, want valid \"2\"", recs[3].Version)
	}

	loc, ok := recs[4].PurlLocator()
	if !ok || loc != "pkg:npm/lodash@4.17.21" {
		t.Errorf("PurlLocator() = %q, %v; want pkg:npm/lodash@4.17.21, true", loc, ok)
	}
	if _, ok := recs[0].PurlLocator(); ok {
		t.Error("record without refs should have no purl")
	}
}

func TestSourceRecordUsable(t *testing.T) {
	tests := []struct {
		name string
		rec  SourceRecord
		want bool
	}{
		{"named", SourceRecord{Name: "x"}, true},
		{"blank", SourceRecord{Name: "   "}, false},
		{"purl only", SourceRecord{ExternalRefs: []ExternalRef{{Type: "purl", Locator: "pkg:npm/a@1"}}}, true},
		{"empty purl", SourceRecord{ExternalRefs: []ExternalRef{{Type: "purl", Locator: " "}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Usable(); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRawVersionMarshal(t *testing.T) {
	data, err := json.Marshal(struct {
		A RawVersion `json:"a"`
		B RawVersion `json:"b"`
	}{A: Version("1.0"), B: NoVersion})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"a":"1.0","b":null}` {
		t.Errorf("Marshal = %s", data)
	}
}
