package sgconf

import "testing"

func TestResolve(t *testing.T) {
	cases := []struct {
		name      string
		flagValue int
		envValue  string
		want      int
		wantErr   bool
	}{
		{"flag takes precedence", 3, "5", 3, false},
		{"falls back to env", 0, "2", 2, false},
		{"both unset defaults to 0", 0, "", 0, false},
		{"flag out of range", 6, "", 0, true},
		{"env out of range", 0, "9", 0, true},
		{"env not an integer", 0, "nope", 0, true},
	}
	for _, c := range cases {
		got, err := Resolve(c.flagValue, c.envValue)
		if (err != nil) != c.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", c.name, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("%s: Resolve = %d, want %d", c.name, got, c.want)
		}
	}
}
