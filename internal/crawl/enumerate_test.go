package crawl

import (
	"errors"
	"testing"
	"time"

	"busfare-ingest/internal/cities"
	"busfare-ingest/internal/rawstore"
)

func testTable() *cities.Table {
	return cities.New(
		cities.City{Name: "Lima (Todos)", ID: 1},
		cities.City{Name: "Arequipa", ID: 2},
		cities.City{Name: "Cusco", ID: 3},
	)
}

func date(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

func TestMonthRange(t *testing.T) {
	r := MonthRange(2024, time.February)
	if got := len(r.Days()); got != 29 {
		t.Fatalf("days in Feb 2024 = %d", got)
	}
	if !r.To.Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", r.To)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		r    DateRange
		max  int
		ok   bool
	}{
		{"single day", DateRange{date(7, 1), date(7, 1)}, 45, true},
		{"month", MonthRange(2025, time.July), 45, true},
		{"inverted", DateRange{date(7, 2), date(7, 1)}, 45, false},
		{"too long", DateRange{date(7, 1), date(9, 1)}, 45, false},
		{"unbounded length", DateRange{date(1, 1), date(12, 31)}, 0, true},
		{"missing", DateRange{To: date(7, 1)}, 45, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.r.Validate(c.max)
			if c.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.ok && !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("err = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestEnumerateOrderAndExclusions(t *testing.T) {
	root := t.TempDir()
	r := DateRange{date(7, 1), date(7, 2)}
	tasks, err := Enumerate(testTable(), r, root, nil, Filter{})
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	// 3 cities -> 6 ordered pairs, 2 days each
	if len(tasks) != 12 {
		t.Fatalf("tasks = %d, want 12", len(tasks))
	}
	first := tasks[0]
	if first.Origin != "Lima (Todos)" || first.Destination != "Arequipa" || !first.Date.Equal(date(7, 1)) {
		t.Fatalf("first task = %s", first)
	}
	if first.OriginID != 1 || first.DestinationID != 2 || first.DOJ() != "01-Jul-2025" {
		t.Fatalf("first task ids/doj = %+v %s", first, first.DOJ())
	}
	if want := rawstore.Path(root, "Lima", "Arequipa", date(7, 1)); first.OutputPath != want {
		t.Fatalf("output = %s, want %s", first.OutputPath, want)
	}
	if !tasks[1].Date.Equal(date(7, 2)) || tasks[2].Destination != "Cusco" {
		t.Fatalf("order: %s, %s", tasks[1], tasks[2])
	}
	for _, tk := range tasks {
		if tk.Origin == tk.Destination {
			t.Fatalf("same-city task %s", tk)
		}
	}
}

func TestEnumerateSkipsDone(t *testing.T) {
	root := t.TempDir()
	r := DateRange{date(7, 1), date(7, 2)}
	done := rawstore.Path(root, "Lima", "Cusco", date(7, 2))
	if err := rawstore.Write(done, []byte(`{"inventories": []}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	tasks, err := Enumerate(testTable(), r, root, rawstore.Exists, Filter{})
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(tasks) != 11 {
		t.Fatalf("tasks = %d, want 11", len(tasks))
	}
	for _, tk := range tasks {
		if tk.OutputPath == done {
			t.Fatalf("done task enumerated: %s", tk)
		}
	}

	// any predicate works, not only the filesystem
	none, _ := Enumerate(testTable(), r, root, func(string) bool { return true }, Filter{})
	if len(none) != 0 {
		t.Fatalf("tasks = %d with everything done", len(none))
	}
}

func TestEnumerateFilter(t *testing.T) {
	r := DateRange{date(7, 1), date(7, 1)}
	tasks, err := Enumerate(testTable(), r, t.TempDir(), nil, Filter{Origin: "Cusco"})
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d", len(tasks))
	}
	tasks, _ = Enumerate(testTable(), r, t.TempDir(), nil, Filter{Origin: "Cusco", Destination: "Arequipa"})
	if len(tasks) != 1 || tasks[0].DestinationID != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if _, err := Enumerate(testTable(), r, t.TempDir(), nil, Filter{Destination: "Tacna"}); err == nil {
		t.Fatalf("expected unknown destination error")
	}
}
