package resolve

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Target
		wantErr error
	}{
		{name: "https", raw: "https://github.com/acme/widget", want: Target{Owner: "acme", Name: "widget"}},
		{name: "trailing slash", raw: "https://github.com/acme/widget/", want: Target{Owner: "acme", Name: "widget"}},
		{name: "http www", raw: "http://www.github.com/acme/widget", want: Target{Owner: "acme", Name: "widget"}},
		{name: "scheme-less", raw: "github.com/acme/widget", want: Target{Owner: "acme", Name: "widget"}},
		{name: "dot git", raw: "https://github.com/acme/widget.git", want: Target{Owner: "acme", Name: "widget"}},
		{name: "query and fragment", raw: "https://github.com/acme/widget?tab=readme#top", want: Target{Owner: "acme", Name: "widget"}},
		{name: "surrounding whitespace", raw: "  https://github.com/acme/widget \n", want: Target{Owner: "acme", Name: "widget"}},
		{name: "upper-case host", raw: "HTTPS://GitHub.com/Acme/Widget", want: Target{Owner: "Acme", Name: "Widget"}},

		{name: "not a url", raw: "not-a-url", wantErr: ErrUnsupportedReference},
		{name: "empty", raw: "", wantErr: ErrUnsupportedReference},
		{name: "other host", raw: "https://gitlab.com/acme/widget", wantErr: ErrUnsupportedReference},
		{name: "lookalike host", raw: "https://github.com.evil.io/acme/widget", wantErr: ErrUnsupportedReference},

		{name: "owner only", raw: "https://github.com/acme", wantErr: ErrMalformedReference},
		{name: "host only", raw: "https://github.com/", wantErr: ErrMalformedReference},
		{name: "deep path", raw: "https://github.com/acme/widget/tree/main", wantErr: ErrMalformedReference},
		{name: "empty segment", raw: "https://github.com/acme//widget", wantErr: ErrMalformedReference},
		{name: "only dot git", raw: "https://github.com/acme/.git", wantErr: ErrMalformedReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				var re *ReferenceError
				if !errors.As(err, &re) || re.Reference != tt.raw {
					t.Fatalf("Resolve(%q) error not a *ReferenceError carrying the input: %#v", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	if got := (Target{Owner: "acme", Name: "widget"}).String(); got != "acme/widget" {
		t.Fatalf("String() = %q", got)
	}
}
