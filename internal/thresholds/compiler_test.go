package thresholds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// defaultDoc returns the default threshold set as a mutable yaml tree.
func defaultDoc(t *testing.T) map[string]interface{} {
	t.Helper()
	data, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatalf("failed to marshal defaults: %v", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to parse defaults: %v", err)
	}
	return doc
}

func docBytes(t *testing.T, doc map[string]interface{}) []byte {
	t.Helper()
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal doc: %v", err)
	}
	return data
}

func section(t *testing.T, doc map[string]interface{}, path ...string) map[string]interface{} {
	t.Helper()
	node := doc
	for _, key := range path {
		child, ok := node[key].(map[string]interface{})
		if !ok {
			t.Fatalf("section %s missing or not a mapping", key)
		}
		node = child
	}
	return node
}

func TestCompileDefaults(t *testing.T) {
	compiled, err := CompileDefault()
	if err != nil {
		t.Fatalf("defaults must compile: %v", err)
	}
	if len(compiled.Version()) != 64 {
		t.Errorf("expected 64-char sha256 hex version, got %q", compiled.Version())
	}
	if compiled.MarketRegime.ExtremePriceChange1h != 0.05 {
		t.Errorf("unexpected extreme threshold: %f", compiled.MarketRegime.ExtremePriceChange1h)
	}
	if compiled.DualTimeframe.FrequencyControl.ShortTerm.CooldownMinutes != 30 {
		t.Errorf("unexpected short cooldown: %d",
			compiled.DualTimeframe.FrequencyControl.ShortTerm.CooldownMinutes)
	}
}

func TestVersionHashIsStable(t *testing.T) {
	data := docBytes(t, defaultDoc(t))

	a, err := CompileBytes(data)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	b, err := CompileBytes(data)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if a.Version() != b.Version() {
		t.Errorf("same document produced different versions: %s vs %s", a.Version(), b.Version())
	}

	doc := defaultDoc(t)
	section(t, doc, "market_regime")["extreme_price_change_1h"] = 0.06
	c, err := CompileBytes(docBytes(t, doc))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if c.Version() == a.Version() {
		t.Error("changed document must produce a different version")
	}
}

func TestDeprecatedKeyMigration(t *testing.T) {
	doc := defaultDoc(t)
	rng := section(t, doc, "direction", "range")
	want := rng["min_taker_imbalance"]
	delete(rng, "min_taker_imbalance")
	rng["min_buy_sell_imbalance"] = want

	compiled, err := CompileBytes(docBytes(t, doc))
	if err != nil {
		t.Fatalf("migrated document must compile: %v", err)
	}
	if got := compiled.Direction.Range.MinTakerImbalance; got != want {
		t.Errorf("expected migrated value %v, got %v", want, got)
	}

	// Migration happens before hashing, so a deprecated spelling and the
	// new spelling of the same document share one version.
	reference, err := CompileBytes(docBytes(t, defaultDoc(t)))
	if err != nil {
		t.Fatalf("reference compile failed: %v", err)
	}
	if compiled.Version() != reference.Version() {
		t.Error("deprecated and migrated spellings must hash identically")
	}
}

func TestMigrationDoesNotOverwriteNewKey(t *testing.T) {
	doc := defaultDoc(t)
	rng := section(t, doc, "direction", "range")
	rng["min_taker_imbalance"] = 0.7
	rng["min_buy_sell_imbalance"] = 0.2

	compiled, err := CompileBytes(docBytes(t, doc))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if got := compiled.Direction.Range.MinTakerImbalance; got != 0.7 {
		t.Errorf("new-style key must win over deprecated one, got %v", got)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(t *testing.T, doc map[string]interface{})
		keyPart string
	}{
		{
			"extreme out of range",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "market_regime")["extreme_price_change_1h"] = 5.0
			},
			"extreme_price_change_1h",
		},
		{
			"extreme below trend fallback",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "market_regime")["extreme_price_change_1h"] = 0.01
			},
			"extreme_price_change_1h",
		},
		{
			"negative cooldown",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "dual_timeframe", "frequency_control", "short_term")["cooldown_minutes"] = -5
			},
			"cooldown_minutes",
		},
		{
			"required signals too large",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "dual_timeframe", "short_term")["required_signals"] = 9
			},
			"required_signals",
		},
		{
			"unknown conflict resolution",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "dual_timeframe")["conflict_resolution"] = "flip_a_coin"
			},
			"conflict_resolution",
		},
		{
			"tag cap references unknown tag",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "confidence_scoring", "caps", "tag_caps")["not_a_tag"] = "medium"
			},
			"not_a_tag",
		},
		{
			"tag cap references unknown level",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "confidence_scoring", "caps", "tag_caps")["noisy_market"] = "gigantic"
			},
			"noisy_market",
		},
		{
			"positive short imbalance",
			func(t *testing.T, doc map[string]interface{}) {
				section(t, doc, "direction", "trend")["short_imbalance"] = 0.4
			},
			"short_imbalance",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := defaultDoc(t)
			tc.mutate(t, doc)
			_, err := CompileBytes(docBytes(t, doc))
			if err == nil {
				t.Fatal("expected compile to fail")
			}
			if !strings.Contains(err.Error(), tc.keyPart) {
				t.Errorf("diagnostic should name %q, got: %v", tc.keyPart, err)
			}
		})
	}
}

func TestMissingSectionFails(t *testing.T) {
	doc := defaultDoc(t)
	delete(doc, "risk_exposure")
	_, err := CompileBytes(docBytes(t, doc))
	if err == nil {
		t.Fatal("expected compile to fail")
	}
	if !strings.Contains(err.Error(), "risk_exposure") {
		t.Errorf("diagnostic should name the missing section, got: %v", err)
	}
}

func TestUnknownKeysAreIgnored(t *testing.T) {
	doc := defaultDoc(t)
	doc["experimental_section"] = map[string]interface{}{"knob": 1}
	section(t, doc, "market_regime")["typo_threshold"] = 0.5

	compiled, err := CompileBytes(docBytes(t, doc))
	if err != nil {
		t.Fatalf("unknown keys must not fail compilation: %v", err)
	}
	if compiled.MarketRegime.ExtremePriceChange1h != 0.05 {
		t.Error("known keys must still decode")
	}
}

func TestEmptyDocumentFails(t *testing.T) {
	if _, err := CompileBytes([]byte("")); err == nil {
		t.Error("empty document must not compile")
	}
	if _, err := CompileBytes([]byte("{}")); err == nil {
		t.Error("document without sections must not compile")
	}
}

func TestStoreReloadKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, docBytes(t, defaultDoc(t)), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	initial := store.Current().Version()

	// Break the file: reload must fail and keep the active snapshot.
	if err := os.WriteFile(path, []byte("::: not yaml"), 0644); err != nil {
		t.Fatalf("failed to overwrite file: %v", err)
	}
	if _, err := store.Reload(); err == nil {
		t.Error("reload of a broken file must fail")
	}
	if got := store.Current().Version(); got != initial {
		t.Errorf("active version must survive a failed reload, got %s", got)
	}

	// Fix the file with a change: reload must publish the new version.
	doc := defaultDoc(t)
	section(t, doc, "market_regime")["extreme_price_change_1h"] = 0.07
	if err := os.WriteFile(path, docBytes(t, doc), 0644); err != nil {
		t.Fatalf("failed to rewrite file: %v", err)
	}
	reloaded, err := store.Reload()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Version() == initial {
		t.Error("reload of a changed file must produce a new version")
	}
	if store.Current().Version() != reloaded.Version() {
		t.Error("store must publish the reloaded snapshot")
	}
}

func TestStoreWithoutPathUsesDefaults(t *testing.T) {
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("default store init failed: %v", err)
	}
	if store.Current() == nil {
		t.Fatal("expected a compiled default snapshot")
	}
	if store.Current().Version() == "" {
		t.Error("default snapshot must carry a version hash")
	}
}
