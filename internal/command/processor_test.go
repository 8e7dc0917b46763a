package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/openboard/umlvision/internal/config"
	"github.com/openboard/umlvision/internal/faults"
	"github.com/openboard/umlvision/internal/model"
)

// stubGen replaces the HTTP generative client in tests.
type stubGen struct {
	available bool
	output    string
	err       error
	calls     int
}

func (s *stubGen) Available() bool { return s.available }

func (s *stubGen) Complete(context.Context, string) (string, error) {
	s.calls++
	return s.output, s.err
}

func snapshot() *model.DiagramSnapshot {
	return &model.DiagramSnapshot{
		Nodes: []model.ClassNode{
			{
				ID:    "u1",
				Label: "User",
				Attributes: []model.Attribute{
					{ID: "at1", Name: "id", Type: "Long", Visibility: model.VisibilityPrivate},
					{ID: "at2", Name: "email", Type: "String", Visibility: model.VisibilityPrivate},
				},
				Methods: []model.Method{
					{ID: "m1", Name: "login", ReturnType: "Boolean", Visibility: model.VisibilityPublic},
				},
			},
			{ID: "a1", Label: "Account"},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "u1", Target: "a1", Kind: model.Association},
		},
	}
}

func testProcessor(t *testing.T, cfg *config.Config) *Processor {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	p := NewProcessor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.gen = &stubGen{}
	return p
}

func process(t *testing.T, p *Processor, instruction string) (*model.Delta, error) {
	t.Helper()
	return p.Process(context.Background(), Request{
		Instruction: instruction,
		DiagramID:   "d1",
		Snapshot:    snapshot(),
		Identity:    "alice",
		UseCache:    true,
	})
}

func TestAddAttributeDelta(t *testing.T) {
	p := testProcessor(t, nil)
	d, err := process(t, p, "add attribute email (String) to class User")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if d.Action != model.ActionUpdateNode || d.NodeID != "u1" {
		t.Fatalf("delta header: %+v", d)
	}
	ch, ok := d.Changes["data.attributes"]
	if !ok || ch.Operation != model.OpAppend {
		t.Fatalf("changes: %+v", d.Changes)
	}
	attr := ch.Value.(model.Attribute)
	if attr.Name != "email" || attr.Type != "String" || attr.Visibility != model.VisibilityPrivate {
		t.Fatalf("attribute payload: %+v", attr)
	}
}

func TestRenameClassDelta(t *testing.T) {
	p := testProcessor(t, nil)
	d, err := process(t, p, "rename class User to Customer")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if d.Action != model.ActionUpdateNode || d.NodeID != "u1" {
		t.Fatalf("delta header: %+v", d)
	}
	ch := d.Changes["data.label"]
	if ch.Operation != model.OpReplace || ch.Value.(string) != "Customer" {
		t.Fatalf("label change: %+v", ch)
	}
}

func TestUnknownClassIsTerminal(t *testing.T) {
	p := testProcessor(t, nil)
	gen := &stubGen{available: true, output: `{"action":"update_node"}`}
	p.gen = gen

	_, err := process(t, p, "remove method login from class Ghost")
	if !errors.Is(err, faults.ErrReferenceNotFound) {
		t.Fatalf("got %v, want ErrReferenceNotFound", err)
	}
	if gen.calls != 0 {
		t.Fatal("matched pattern fell through to the generative fallback")
	}
}

func TestUnknownMemberIsTerminal(t *testing.T) {
	p := testProcessor(t, nil)
	_, err := process(t, p, "remove attribute ghost from class User")
	if !errors.Is(err, faults.ErrReferenceNotFound) {
		t.Fatalf("got %v, want ErrReferenceNotFound", err)
	}
}

func TestEmptyInstruction(t *testing.T) {
	p := testProcessor(t, nil)
	_, err := process(t, p, "   ")
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

// Every pattern intent must produce the same action and equivalent changes
// from an English and a Spanish instruction.
func TestBilingualEquivalence(t *testing.T) {
	cases := []struct {
		name    string
		english string
		spanish string
	}{
		{"add attribute",
			"add attribute nickname (String) to class User",
			"agregar atributo nickname (String) a la clase User"},
		{"remove attribute",
			"remove attribute email from class User",
			"eliminar el atributo email de la clase User"},
		{"modify attribute",
			"change type of attribute email in class User to Text",
			"cambiar el tipo del atributo email en la clase User a Text"},
		{"add method",
			"add method check(code: int): Boolean to class User",
			"agregar un método check(code: int): Boolean a la clase User"},
		{"remove method",
			"remove method login from class User",
			"quitar el método login de la clase User"},
		{"add relationship",
			"add an inheritance from class User to class Account",
			"crear una herencia desde la clase User a la clase Account"},
		{"remove relationship",
			"remove the relationship between User and Account",
			"eliminar la relación entre User y Account"},
		{"rename class",
			"rename class User to Customer",
			"renombrar la clase User a Customer"},
		{"change visibility",
			"change visibility of attribute email in class User to protected",
			"cambiar la visibilidad del atributo email en la clase User a protegido"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProcessor(t, nil)
			en, err := process(t, p, tc.english)
			if err != nil {
				t.Fatalf("english: %v", err)
			}
			es, err := process(t, p, tc.spanish)
			if err != nil {
				t.Fatalf("spanish: %v", err)
			}

			if en.Action != es.Action {
				t.Fatalf("actions differ: %s vs %s", en.Action, es.Action)
			}
			if en.NodeID != es.NodeID || en.EdgeID != es.EdgeID {
				t.Fatalf("targets differ: %+v vs %+v", en, es)
			}
			if !equivalentChanges(en.Changes, es.Changes) {
				t.Fatalf("changes differ:\n en: %+v\n es: %+v", en.Changes, es.Changes)
			}
		})
	}
}

// equivalentChanges compares change maps ignoring generated edge IDs.
func equivalentChanges(a, b map[string]model.Change) bool {
	if len(a) != len(b) {
		return false
	}
	for path, ca := range a {
		cb, ok := b[path]
		if !ok || ca.Operation != cb.Operation {
			return false
		}
		if ea, isEdge := ca.Value.(model.Edge); isEdge {
			eb, ok := cb.Value.(model.Edge)
			if !ok || ea.Source != eb.Source || ea.Target != eb.Target || ea.Kind != eb.Kind {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(ca.Value, cb.Value) || !reflect.DeepEqual(ca.Filter, cb.Filter) {
			return false
		}
	}
	return true
}

func TestRelationshipKindInference(t *testing.T) {
	cases := []struct {
		instruction string
		kind        model.RelationshipKind
	}{
		{"add an inheritance from class User to class Account", model.Inheritance},
		{"add a composition from class User to class Account", model.Composition},
		{"add an aggregation from class User to class Account", model.Aggregation},
		{"add a dependency from class User to class Account", model.Dependency},
		{"add a link from class User to class Account", model.Association},
	}

	for _, tc := range cases {
		p := testProcessor(t, nil)
		d, err := process(t, p, tc.instruction)
		if err != nil {
			t.Fatalf("%q: %v", tc.instruction, err)
		}
		if d.Action != model.ActionAddEdge {
			t.Fatalf("%q: action %s", tc.instruction, d.Action)
		}
		edge := d.Changes["data"].Value.(model.Edge)
		if edge.Kind != tc.kind {
			t.Fatalf("%q: kind %s, want %s", tc.instruction, edge.Kind, tc.kind)
		}
		if edge.Source != "u1" || edge.Target != "a1" {
			t.Fatalf("%q: edge %+v", tc.instruction, edge)
		}
	}
}

func TestRemoveRelationshipDelta(t *testing.T) {
	p := testProcessor(t, nil)
	d, err := process(t, p, "remove the relationship between Account and User")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.Action != model.ActionDeleteEdge || d.EdgeID != "e1" {
		t.Fatalf("delta: %+v", d)
	}
}

func TestFallbackPath(t *testing.T) {
	p := testProcessor(t, nil)
	gen := &stubGen{
		available: true,
		output:    "Sure, here is the delta:\n```json\n{\"action\":\"delete_node\",\"node_id\":\"u1\"}\n```",
	}
	p.gen = gen

	d, err := process(t, p, "get rid of that user thing please")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generative called %d times, want 1", gen.calls)
	}
	if d.Action != model.ActionDeleteNode || d.NodeID != "u1" {
		t.Fatalf("delta: %+v", d)
	}
}

func TestFallbackUnavailable(t *testing.T) {
	p := testProcessor(t, nil)
	_, err := process(t, p, "get rid of that user thing please")
	if !errors.Is(err, faults.ErrCommandNotRecognized) {
		t.Fatalf("got %v, want ErrCommandNotRecognized", err)
	}
}

func TestFallbackGarbageOutput(t *testing.T) {
	p := testProcessor(t, nil)
	p.gen = &stubGen{available: true, output: "I cannot help with that."}

	_, err := process(t, p, "get rid of that user thing please")
	if !errors.Is(err, faults.ErrCommandNotRecognized) {
		t.Fatalf("got %v, want ErrCommandNotRecognized", err)
	}
}

func TestDeltaCaching(t *testing.T) {
	p := testProcessor(t, nil)
	first, err := process(t, p, "rename class User to Customer")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := process(t, p, "Rename Class USER to Customer")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	// Lower-cased instructions share a cache entry... but only literally
	// identical ones: case differences change nothing semantically here.
	if first.Action != second.Action {
		t.Fatal("cached delta differs")
	}

	// Differing snapshots must produce different keys.
	snapA := snapshot()
	snapB := snapshot()
	snapB.Nodes[0].Label = "Person"
	keyA := p.cacheKey("d1", "x", snapA)
	keyB := p.cacheKey("d1", "x", snapB)
	if keyA == keyB {
		t.Fatal("differing snapshots share a cache key")
	}
	if keyA != p.cacheKey("d1", "x", snapshot()) {
		t.Fatal("identical inputs produce differing cache keys")
	}
}

func TestUseCacheFlagDisablesLookup(t *testing.T) {
	p := testProcessor(t, nil)
	req := Request{
		Instruction: "rename class User to Customer",
		DiagramID:   "d1",
		Snapshot:    snapshot(),
		Identity:    "alice",
		UseCache:    false,
	}
	if _, err := p.Process(context.Background(), req); err != nil {
		t.Fatalf("first: %v", err)
	}
	if p.cache.Len() != 0 {
		t.Fatal("delta cached despite UseCache=false")
	}
}

func TestCommandRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Command.MaxRequests = 2
	p := testProcessor(t, cfg)

	// Distinct instructions sidestep the cache.
	if _, err := process(t, p, "rename class User to Customer"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := process(t, p, "rename class Account to Wallet"); err != nil {
		t.Fatalf("second: %v", err)
	}
	_, err := process(t, p, "rename class User to Client")
	retry, limited := faults.IsRateLimited(err)
	if !limited || retry < 1 {
		t.Fatalf("got (%v, retry=%d), want rate limited", err, retry)
	}
}

func TestLanguageDetection(t *testing.T) {
	cases := []struct {
		instruction string
		want        string
	}{
		{"add attribute email (String) to class User", "en"},
		{"agregar atributo email a la clase Usuario", "es"},
		{"renombrar la clase User a Customer", "es"},
		{"rename class User to Customer", "en"},
		{"", "en"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.instruction); got != tc.want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", tc.instruction, got, tc.want)
		}
	}
}

func TestAddMethodParameters(t *testing.T) {
	p := testProcessor(t, nil)
	d, err := process(t, p, "add method check(code: int, strict): Boolean to class User")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	m := d.Changes["data.methods"].Value.(model.Method)
	if m.ReturnType != "Boolean" || m.Visibility != model.VisibilityPublic {
		t.Fatalf("method payload: %+v", m)
	}
	want := []model.Parameter{{Name: "code", Type: "Integer"}, {Name: "strict", Type: "Object"}}
	if !reflect.DeepEqual(m.Parameters, want) {
		t.Fatalf("parameters %+v, want %+v", m.Parameters, want)
	}
}
