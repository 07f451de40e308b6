package script

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		def    Definition
		values Values
		want   string
	}{
		{
			name: "positional ticket",
			def: Definition{ID: "x", Command: "zx run.mjs", Args: []Argument{
				{Name: "ticket", Type: TypeString, Required: true, Positional: true},
			}},
			values: Values{"ticket": "JIRA-42"},
			want:   `zx run.mjs "JIRA-42"`,
		},
		{
			name:   "boolean true",
			def:    Definition{Command: "deploy", Args: []Argument{{Name: "verbose", Type: TypeBoolean}}},
			values: Values{"verbose": true},
			want:   "deploy --verbose",
		},
		{
			name:   "boolean absent",
			def:    Definition{Command: "deploy", Args: []Argument{{Name: "verbose", Type: TypeBoolean}}},
			values: Values{},
			want:   "deploy",
		},
		{
			name:   "boolean false",
			def:    Definition{Command: "deploy", Args: []Argument{{Name: "verbose", Type: TypeBoolean}}},
			values: Values{"verbose": false},
			want:   "deploy",
		},
		{
			name:   "flag string",
			def:    Definition{Command: "sh run.sh", Args: []Argument{{Name: "branch", Type: TypeString}}},
			values: Values{"branch": "main"},
			want:   `sh run.sh --branch "main"`,
		},
		{
			name:   "empty flag string",
			def:    Definition{Command: "sh run.sh", Args: []Argument{{Name: "branch", Type: TypeString}}},
			values: Values{"branch": ""},
			want:   "sh run.sh",
		},
		{
			name:   "empty positional",
			def:    Definition{Command: "sh run.sh", Args: []Argument{{Name: "target", Type: TypeString, Positional: true}}},
			values: Values{"target": ""},
			want:   "sh run.sh",
		},
		{
			name: "definition order",
			def: Definition{Command: "zx release.mjs", Args: []Argument{
				{Name: "version", Type: TypeString, Positional: true},
				{Name: "dry-run", Type: TypeBoolean},
				{Name: "channel", Type: TypeString},
			}},
			values: Values{"channel": "beta", "dry-run": true, "version": "1.2.0"},
			want:   `zx release.mjs "1.2.0" --dry-run --channel "beta"`,
		},
		{
			name:   "defaults are not applied",
			def:    Definition{Command: "run", Args: []Argument{{Name: "env", Type: TypeString, Default: "dev"}}},
			values: Values{},
			want:   "run",
		},
		{
			name:   "ill-typed value is absent",
			def:    Definition{Command: "run", Args: []Argument{{Name: "force", Type: TypeBoolean}}},
			values: Values{"force": "true"},
			want:   "run",
		},
		{
			name:   "quotes are not escaped",
			def:    Definition{Command: "echo", Args: []Argument{{Name: "msg", Type: TypeString, Positional: true}}},
			values: Values{"msg": `say "hi"`},
			want:   `echo "say "hi""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(&tt.def, tt.values)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			if again := Render(&tt.def, tt.values); again != got {
				t.Errorf("Render() not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestRenderBooleanAppearsOnce(t *testing.T) {
	def := Definition{Command: "build", Args: []Argument{
		{Name: "verbose", Type: TypeBoolean},
		{Name: "target", Type: TypeString},
	}}

	got := Render(&def, Values{"verbose": true, "target": "x"})
	if n := strings.Count(got, "--verbose"); n != 1 {
		t.Errorf("--verbose appears %d times in %q, want 1", n, got)
	}
	if strings.Contains(Render(&def, Values{"verbose": false}), "verbose") {
		t.Error("false boolean must not be rendered")
	}
}

func TestRenderPositionalPermutation(t *testing.T) {
	a := Argument{Name: "first", Type: TypeString, Positional: true}
	b := Argument{Name: "second", Type: TypeString, Positional: true}
	values := Values{"first": "one", "second": "two"}

	forward := Render(&Definition{Command: "cmd", Args: []Argument{a, b}}, values)
	reverse := Render(&Definition{Command: "cmd", Args: []Argument{b, a}}, values)

	if forward != `cmd "one" "two"` {
		t.Errorf("forward = %q", forward)
	}
	if reverse != `cmd "two" "one"` {
		t.Errorf("reverse = %q", reverse)
	}
	if strings.Contains(forward, "--first") || strings.Contains(forward, "--second") {
		t.Error("positional arguments must not carry their name")
	}
}

func TestRenderShellQuoting(t *testing.T) {
	def := Definition{Command: "echo", Args: []Argument{
		{Name: "msg", Type: TypeString, Positional: true},
		{Name: "tag", Type: TypeString},
	}}

	got := RenderWith(&def, Values{"msg": "done now", "tag": "$HOME"}, Options{Quoting: QuoteShell})
	want := `echo 'done now' --tag '$HOME'`
	if got != want {
		t.Errorf("RenderWith(shell) = %q, want %q", got, want)
	}

	plain := RenderWith(&def, Values{"msg": "x"}, Options{Quoting: QuoteDouble})
	if plain != `echo "x"` {
		t.Errorf("RenderWith(double) = %q", plain)
	}
}

func TestArgsSuffix(t *testing.T) {
	def := Definition{Command: "ignored", Args: []Argument{{Name: "v", Type: TypeBoolean}}}
	if got := ArgsSuffix(&def, Values{"v": true}, Options{}); got != " --v" {
		t.Errorf("ArgsSuffix() = %q, want %q", got, " --v")
	}
	if got := ArgsSuffix(&def, nil, Options{}); got != "" {
		t.Errorf("ArgsSuffix(nil) = %q, want empty", got)
	}
}
