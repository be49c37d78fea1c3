package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"cidade_do_imovel":          "cidade_do_imovel",
		"Cidade do Imóvel":          "cidade_do_imovel",
		"CPF/CNPJ":                  "cpf_cnpj",
		"  Logradouro / Descrição ": "logradouro_descricao",
		"Área  Total (m²)":          "area_total_m2",
		"fração-ideal":              "fracao_ideal",
		"///":                       "",
	}
	for in, want := range cases {
		got := NormalizeName(in)
		if got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
		if again := NormalizeName(got); again != got {
			t.Errorf("not idempotent: %q -> %q", got, again)
		}
	}
}

func TestBuiltin(t *testing.T) {
	s := Builtin()
	if s.Len() != 31 {
		t.Fatalf("fields = %d", s.Len())
	}
	if s.Name() != "registro_imovel" {
		t.Fatalf("name = %q", s.Name())
	}
	names := s.Names()
	if names[0] != "cidade_do_imovel" || names[len(names)-1] != "editor_de_texto" {
		t.Fatalf("order = %v", names)
	}
	js := s.JSONSchema()
	if js["additionalProperties"] != false {
		t.Fatal("additionalProperties must be false")
	}
	if req := js["required"].([]string); len(req) != 31 {
		t.Fatalf("required = %d", len(req))
	}
	if !strings.Contains(s.Describe(), "- localizacao: Rua/número ou endereço cadastrado\n") {
		t.Fatalf("describe missing field:\n%s", s.Describe())
	}
}

func TestNewRejects(t *testing.T) {
	if _, err := New("", nil); common.KindOf(err) != common.KindConfiguration {
		t.Fatalf("empty: %v", err)
	}
	_, err := New("", []Field{{Name: "CPF/CNPJ"}, {Name: "cpf cnpj"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("dup: %v", err)
	}
	if _, err := New("", []Field{{Name: "  "}}); err == nil {
		t.Fatal("blank name accepted")
	}
}

func TestValidateFillsMissingAndKeepsOrder(t *testing.T) {
	s := Builtin()
	rec, err := s.Validate([]byte(`{"area_total":"120m²","localizacao":"Rua das Flores, 123","zona":null}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, ok := rec.Get("localizacao"); !ok || v != "Rua das Flores, 123" {
		t.Fatalf("localizacao = %q %v", v, ok)
	}
	if _, ok := rec.Get("nome"); ok {
		t.Fatal("missing key should be null")
	}
	if rec.Found() != 2 {
		t.Fatalf("found = %d", rec.Found())
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]*string
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := s.Names()
	sort.Strings(want)
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("key set mismatch:\n got %v\nwant %v", keys, want)
	}
	if !strings.HasPrefix(string(b), `{"cidade_do_imovel":null,"zona":null,"tipo_do_imovel":null`) {
		t.Fatalf("order not preserved: %s", b)
	}
	if !strings.Contains(string(b), `"area_total":"120m²"`) {
		t.Fatalf("non-ascii escaped: %s", b)
	}
}

func TestValidateDeterministic(t *testing.T) {
	s := Builtin()
	raw := []byte(`{"nome":"Maria & José <x>","data":"01/02/2020"}`)
	a, err := s.Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("not deterministic:\n%s\n%s", ja, jb)
	}
}

func TestValidateCoercesScalars(t *testing.T) {
	s := Builtin()
	rec, err := s.Validate([]byte(`{"area_total":120.5,"faz_esquina":true,"nome":"NULL"}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, _ := rec.Get("area_total"); v != "120.5" {
		t.Errorf("area_total = %q", v)
	}
	if v, _ := rec.Get("faz_esquina"); v != "true" {
		t.Errorf("faz_esquina = %q", v)
	}
	if _, ok := rec.Get("nome"); ok {
		t.Error(`"NULL" should become null`)
	}
}

func TestValidateRejects(t *testing.T) {
	s := Builtin()
	cases := []struct {
		name     string
		raw      string
		sentinel error
	}{
		{"not json", `registro: sim`, nil},
		{"array", `["a"]`, common.ErrNotJSONObject},
		{"unknown key", `{"nome":"x","bairro":"Centro"}`, common.ErrUnknownKey},
		{"nested value", `{"nome":{"first":"x"}}`, nil},
		{"trailing", `{"nome":"x"} {"nome":"y"}`, common.ErrNotJSONObject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Validate([]byte(tc.raw))
			ae, ok := common.AsAppError(err)
			if !ok || ae.Kind != common.KindDecode {
				t.Fatalf("err = %v", err)
			}
			if ae.Raw != tc.raw {
				t.Fatalf("raw = %q", ae.Raw)
			}
			if tc.sentinel != nil && !errors.Is(err, tc.sentinel) {
				t.Fatalf("err = %v, want %v", err, tc.sentinel)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "campos.yaml")
	if err := os.WriteFile(list, []byte("- field: Cidade do Imóvel\n  description: Cidade\n- field: CPF/CNPJ\n  description: Documento\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(list, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(s.Names(), ","); got != "cidade_do_imovel,cpf_cnpj" {
		t.Fatalf("names = %s", got)
	}

	doc := filepath.Join(dir, "campos.yml")
	if err := os.WriteFile(doc, []byte("fields:\n  - field: zona\n    description: Urbana ou rural\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err = Load(doc, "", nil)
	if err != nil || s.Len() != 1 {
		t.Fatalf("Load doc: %v", err)
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campos.xlsx")
	if err := Builtin().WriteXLSX(path); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	s, err := Load(path, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(s.Fields(), Builtin().Fields()) {
		t.Fatal("xlsx schema differs from builtin")
	}
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("campos.csv", "", nil)
	if !errors.Is(err, common.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
	s, err := Load("", "", nil)
	if err != nil || s.Len() != 31 {
		t.Fatalf("builtin: %v", err)
	}
}
