package core

import "testing"

func TestRegistry(t *testing.T) {
	Clear()
	defer Clear()

	Register(NewTable("b", "", []Column{{Name: "x"}}, nil))
	Register(NewTable("a", "", []Column{{Name: "x"}}, nil))

	if got := TableCount(); got != 2 {
		t.Errorf("TableCount() = %d, want 2", got)
	}

	all := All()
	if all[0].Name != "a" || all[1].Name != "b" {
		t.Errorf("All() not sorted: %s, %s", all[0].Name, all[1].Name)
	}

	if _, ok := Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}
}

func TestRegister_Panics(t *testing.T) {
	Clear()
	defer Clear()

	Register(NewTable("a", "", []Column{{Name: "x"}}, nil))

	tests := []struct {
		name  string
		table *Table
	}{
		{"duplicate", NewTable("a", "", []Column{{Name: "x"}}, nil)},
		{"invalid", &Table{Name: "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			Register(tt.table)
		})
	}
}
