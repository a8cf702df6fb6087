package query

import "testing"

type listFilter struct {
	Status string `json:"status"`
	Page   int    `json:"page"`
}

func TestKeyEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{"same strings", Key{"bookings", "list"}, Key{"bookings", "list"}, true},
		{"different length", Key{"bookings"}, Key{"bookings", "list"}, false},
		{"string vs number", Key{"bookings", "1"}, Key{"bookings", 1}, false},
		{"equal records", Key{"bookings", listFilter{"pending", 1}}, Key{"bookings", listFilter{"pending", 1}}, true},
		{"equal maps", Key{"bookings", map[string]any{"status": "pending", "page": 1}}, Key{"bookings", map[string]any{"page": 1, "status": "pending"}}, true},
		{"different records", Key{"bookings", listFilter{"pending", 1}}, Key{"bookings", listFilter{"pending", 2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.a.String() == tt.b.String(); got != tt.want {
				t.Errorf("String() equality = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyHasPrefix(t *testing.T) {
	list := Key{"favorites", "list", "service"}
	tests := []struct {
		prefix Key
		want   bool
	}{
		{Key{}, true},
		{Key{"favorites"}, true},
		{Key{"favorites", "list"}, true},
		{list, true},
		{Key{"favorites", "detail"}, false},
		{Key{"favorites", "list", "service", "extra"}, false},
		{Key{"favorite"}, false},
	}
	for _, tt := range tests {
		if got := list.HasPrefix(tt.prefix); got != tt.want {
			t.Errorf("%v.HasPrefix(%v) = %v, want %v", list, tt.prefix, got, tt.want)
		}
	}
}

func TestKeyAppendDoesNotAlias(t *testing.T) {
	base := make(Key, 1, 4)
	base[0] = "bookings"
	a := base.Append("list")
	b := base.Append("detail")
	if a[1] != "list" || b[1] != "detail" {
		t.Fatalf("Append aliased backing array: a=%v b=%v", a, b)
	}
}
