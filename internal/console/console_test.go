package console

import "testing"

type fakeStore struct {
	data  map[string]string
	saved map[string]string
}

func newFakeStore(seed map[string]string) *fakeStore {
	return &fakeStore{data: seed, saved: make(map[string]string)}
}

func (f *fakeStore) Load() (map[string]string, error) { return f.data, nil }
func (f *fakeStore) Save(name, value string) error {
	f.saved[name] = value
	return nil
}

func TestSetVariableAndGetVariants(t *testing.T) {
	c := New(nil, nil)
	c.SetVariable("sv_shards", "4")
	c.SetVariable("sv_ratio", "1.5")
	c.SetVariable("developer", "true")

	if n, ok := c.GetInt("sv_shards"); !ok || n != 4 {
		t.Fatalf("GetInt(sv_shards) = %d, %v, want 4, true", n, ok)
	}
	if f, ok := c.GetFloat("sv_ratio"); !ok || f != 1.5 {
		t.Fatalf("GetFloat(sv_ratio) = %v, %v, want 1.5, true", f, ok)
	}
	if b, ok := c.GetBool("developer"); !ok || !b {
		t.Fatalf("GetBool(developer) = %v, %v, want true, true", b, ok)
	}
	if _, ok := c.GetVariable("missing"); ok {
		t.Fatalf("GetVariable(missing) ok = true, want false")
	}
}

func TestVariableNamesCaseInsensitive(t *testing.T) {
	c := New(nil, nil)
	c.SetVariable("SV_Shards", "8")
	v, ok := c.GetVariable("sv_shards")
	if !ok || v != "8" {
		t.Fatalf("GetVariable case-insensitive lookup = %q, %v, want 8, true", v, ok)
	}
}

// Scenario: alias expansion inserts its expansion at the head of the queue,
// so the remaining commands in the original line still run after it, in
// order, ahead of anything already queued.
func TestAliasExpansionOrder(t *testing.T) {
	c := New(nil, nil)
	c.AppendScript(`alias go "sv_shards 2; sv_ratio 1"`)
	c.Execute()

	c.AppendScript("go")
	c.AppendScript("final_marker 1")
	c.Execute()

	if v, _ := c.GetVariable("sv_shards"); v != "2" {
		t.Fatalf("sv_shards = %q, want 2", v)
	}
	if v, _ := c.GetVariable("sv_ratio"); v != "1" {
		t.Fatalf("sv_ratio = %q, want 1", v)
	}
	if v, _ := c.GetVariable("final_marker"); v != "1" {
		t.Fatalf("final_marker = %q, want 1 (queued after the alias, still ran)", v)
	}
}

// Scenario: wait suspends execution mid-queue; commands queued after the
// wait do not run until a later Execute call resumes draining the queue.
func TestWaitSuspendsExecution(t *testing.T) {
	c := New(nil, nil)
	c.AppendScript("sv_shards 1")
	c.AppendScript("wait")
	c.AppendScript("sv_shards 2")

	c.Execute()
	if c.Flag() != Suspended {
		t.Fatalf("Flag() = %v after wait, want Suspended", c.Flag())
	}
	if v, _ := c.GetVariable("sv_shards"); v != "1" {
		t.Fatalf("sv_shards = %q after suspend, want 1 (command after wait not yet run)", v)
	}

	c.Execute()
	if v, _ := c.GetVariable("sv_shards"); v != "2" {
		t.Fatalf("sv_shards = %q after resume, want 2", v)
	}
	if c.Flag() != Stopped {
		t.Fatalf("Flag() = %v after queue drains, want Stopped", c.Flag())
	}
}

func TestQuitClearsQueueAndSetsFlag(t *testing.T) {
	c := New(nil, nil)
	c.AppendScript("quit")
	c.AppendScript("sv_shards 9")
	c.Execute()

	if !c.Quit() {
		t.Fatalf("Quit() = false after running quit, want true")
	}
	if _, ok := c.GetVariable("sv_shards"); ok {
		t.Fatalf("sv_shards was set, want quit to have cleared the remaining queue")
	}
}

func TestSetaPersistsToStore(t *testing.T) {
	store := newFakeStore(nil)
	c := New(nil, store)
	c.AppendScript(`seta sv_shards 4`)
	c.Execute()

	if store.saved["sv_shards"] != "4" {
		t.Fatalf("store.saved[sv_shards] = %q, want 4", store.saved["sv_shards"])
	}

	c.SetVariable("sv_shards", "8")
	if store.saved["sv_shards"] != "8" {
		t.Fatalf("subsequent SetVariable on an archived var did not write through: got %q, want 8", store.saved["sv_shards"])
	}
}

func TestNewLoadsArchivedVariablesFromStore(t *testing.T) {
	store := newFakeStore(map[string]string{"sv_shards": "6"})
	c := New(nil, store)

	v, ok := c.GetVariable("sv_shards")
	if !ok || v != "6" {
		t.Fatalf("GetVariable(sv_shards) = %q, %v, want 6, true (loaded from store)", v, ok)
	}
}

// Scenario: a quoted alias body must survive AppendScript intact, and
// expanding the alias must strip the quotes rather than leave them as part
// of a token.
func TestQuotedAliasBodyStripsQuotesOnExpansion(t *testing.T) {
	c := New(nil, nil)
	c.AppendScript(`alias greet "echo hi"`)
	c.Execute()

	c.AppendScript("greet")
	c.Execute()

	if v, _ := c.GetVariable("echo"); v != "hi" {
		t.Fatalf(`after expanding "greet", echo = %q, want hi (quotes must be stripped, not part of the variable name)`, v)
	}
}

func TestCommentsAndSemicolonsTokenized(t *testing.T) {
	c := New(nil, nil)
	c.AppendScript("sv_shards 3 // trailing comment\nsv_ratio 2; developer 1")
	c.Execute()

	if v, _ := c.GetVariable("sv_shards"); v != "3" {
		t.Fatalf("sv_shards = %q, want 3", v)
	}
	if v, _ := c.GetVariable("sv_ratio"); v != "2" {
		t.Fatalf("sv_ratio = %q, want 2", v)
	}
	if v, _ := c.GetVariable("developer"); v != "1" {
		t.Fatalf("developer = %q, want 1", v)
	}
}
