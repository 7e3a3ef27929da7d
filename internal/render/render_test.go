package render

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/scan"
)

func entries() []scan.Entry {
	return []scan.Entry{
		{
			Addr: netip.MustParseAddr("10.0.0.1"),
			Identification: identify.Identification{
				ID: "shelly-abc", Name: "plug1", Model: "SNPL-00112EU", Generation: 2, Firmware: "1.14.0",
			},
		},
		{
			Addr:           netip.MustParseAddr("10.0.0.7"),
			Identification: identify.Identification{ID: "shellyplus1-1", Name: "porch"},
		},
	}
}

func render(t *testing.T, f Format, e []scan.Entry, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Result(&buf, f, &scan.Result{Entries: e}, opts); err != nil {
		t.Fatalf("Result(%s) error = %v", f, err)
	}
	return buf.String()
}

func TestRender_PairFormats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		opts   Options
		want   string
	}{
		{name: "list", format: FormatList, want: `[["plug1","10.0.0.1"],["porch","10.0.0.7"]]` + "\n"},
		{name: "name", format: FormatName, want: `{"plug1":"10.0.0.1","porch":"10.0.0.7"}` + "\n"},
		{name: "addr", format: FormatAddr, want: `{"10.0.0.1":"plug1","10.0.0.7":"porch"}` + "\n"},
		{name: "csv", format: FormatCSV, opts: DefaultOptions(), want: "plug1,10.0.0.1\nporch,10.0.0.7\n"},
		{name: "table", format: FormatTable, opts: DefaultOptions(), want: "name,addr\nplug1,10.0.0.1\nporch,10.0.0.7\n"},
		{
			name:   "csv custom delimiters",
			format: FormatCSV,
			opts:   Options{ColDelim: ": ", RowDelim: "; ", Quote: `"`},
			want:   `"plug1": "10.0.0.1"; "porch": "10.0.0.7"` + "\n",
		},
		{
			name:   "table with quotes",
			format: FormatTable,
			opts:   Options{ColDelim: "\t", RowDelim: "\n", Quote: "'"},
			want:   "'name'\t'addr'\n'plug1'\t'10.0.0.1'\n'porch'\t'10.0.0.7'\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.format, entries(), tt.opts); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Empty(t *testing.T) {
	if got := render(t, FormatList, nil, DefaultOptions()); got != "[]\n" {
		t.Errorf("list = %q, want []", got)
	}
	if got := render(t, FormatName, nil, DefaultOptions()); got != "{}\n" {
		t.Errorf("name = %q, want {}", got)
	}
	if got := render(t, FormatTable, nil, DefaultOptions()); got != "name,addr\n\n" {
		t.Errorf("table = %q", got)
	}
}

func TestRender_NameDuplicatesKeepFirstPosition(t *testing.T) {
	e := entries()
	e = append(e, scan.Entry{
		Addr:           netip.MustParseAddr("10.0.0.9"),
		Identification: identify.Identification{ID: "shelly-x", Name: "plug1"},
	})
	want := `{"plug1":"10.0.0.9","porch":"10.0.0.7"}` + "\n"
	if got := render(t, FormatName, e, Options{}); got != want {
		t.Errorf("name = %q, want %q", got, want)
	}
}

func TestRender_Devices(t *testing.T) {
	devices := []scan.Device{
		{Name: "hall", Addr: netip.MustParseAddr("192.168.1.20")},
		{Name: "porch", Addr: netip.MustParseAddr("192.168.1.21")},
	}

	var buf bytes.Buffer
	if err := Render(&buf, FormatCSV, devices, DefaultOptions()); err != nil {
		t.Fatalf("Render(csv) error = %v", err)
	}
	if want := "hall,192.168.1.20\nporch,192.168.1.21\n"; buf.String() != want {
		t.Errorf("Render(csv) = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteGLM(&buf, devices, ""); err != nil {
		t.Fatalf("WriteGLM() error = %v", err)
	}
	if !strings.Contains(buf.String(), "name \"porch\";\n        ipaddr \"192.168.1.21\";") {
		t.Errorf("WriteGLM() missing porch:\n%s", buf.String())
	}

	for _, f := range []Format{FormatJSON, FormatYAML, FormatPretty} {
		if err := Render(&buf, f, devices, Options{}); err == nil {
			t.Errorf("Render(%s) should refuse a record format", f)
		}
		if !f.IsRecord() {
			t.Errorf("%s.IsRecord() = false", f)
		}
	}
	if FormatGLM.IsRecord() {
		t.Error("glm is a pair format")
	}
}

func TestRenderRecords_RejectsPairFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRecords(&buf, FormatCSV, nil); err == nil {
		t.Error("RenderRecords(csv) should fail")
	}
}

func TestRender_JSON(t *testing.T) {
	out := render(t, FormatJSON, entries(), Options{})

	var records []Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("json output does not parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Model != "SNPL-00112EU" || records[0].Generation != 2 {
		t.Errorf("records[0] = %+v", records[0])
	}
}

func TestRender_YAML(t *testing.T) {
	out := render(t, FormatYAML, entries(), Options{})

	var records []Record
	if err := yaml.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("yaml output does not parse: %v", err)
	}
	if len(records) != 2 || records[1].Name != "porch" || records[1].Addr != "10.0.0.7" {
		t.Errorf("records = %+v", records)
	}
}

func TestRender_GLM(t *testing.T) {
	out := render(t, FormatGLM, entries(), Options{})

	if !strings.HasPrefix(out, "module shelly;\n") {
		t.Error("glm should start with the module directive")
	}
	for _, want := range []string{
		"object hub {\n",
		"        name \"plug1\";\n        ipaddr \"10.0.0.1\";\n",
		"        name \"porch\";\n        ipaddr \"10.0.0.7\";\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("glm missing %q", want)
		}
	}
	if strings.Count(out, "{") != strings.Count(out, "}") {
		t.Errorf("glm braces unbalanced:\n%s", out)
	}
	if strings.Contains(out, "    name \"test_hub\";") {
		t.Error("hub name should only appear when set")
	}

	named := render(t, FormatGLM, entries(), Options{HubName: "test_hub"})
	if !strings.Contains(named, "object hub {\n    name \"test_hub\";\n") {
		t.Errorf("glm with hub name missing hub name line:\n%s", named)
	}
}

func TestRender_Pretty(t *testing.T) {
	out := render(t, FormatPretty, entries(), Options{})
	for _, want := range []string{"NAME", "plug1", "10.0.0.7", "SNPL-00112EU"} {
		if !strings.Contains(out, want) {
			t.Errorf("pretty output missing %q", want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, name := range Formats() {
		if _, err := ParseFormat(name); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", name, err)
		}
	}
	if f, err := ParseFormat(" CSV "); err != nil || f != FormatCSV {
		t.Errorf("ParseFormat(\" CSV \") = %v, %v", f, err)
	}
	if _, err := ParseFormat("pandas"); err == nil {
		t.Error("ParseFormat(pandas) should fail")
	}
}
