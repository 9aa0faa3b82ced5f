package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SureOnThisShiningNight/openrank/internal/output"
)

type workspace struct {
	dir        string
	input      string
	output     string
	checkpoint string
}

func newWorkspace(t *testing.T, lines ...string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:        dir,
		input:      filepath.Join(dir, "input.jsonl"),
		output:     filepath.Join(dir, "crawled.jsonl"),
		checkpoint: filepath.Join(dir, "last_processed_id.txt"),
	}
	if err := os.WriteFile(ws.input, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return ws
}

func (ws workspace) args(cmd string, extra ...string) []string {
	args := []string{cmd, "--input", ws.input, "--output", ws.output, "--checkpoint", ws.checkpoint}
	return append(args, extra...)
}

func fakeAPI(t *testing.T, userStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if userStatus != 0 {
			w.WriteHeader(userStatus)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"login":"octocat"}`)
	})
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"stargazers_count":120,"forks_count":8,"open_issues_count":3,"created_at":"2019-03-04T05:06:07Z","pushed_at":"2025-05-30T10:00:00Z"}`)
	})
	mux.HandleFunc("/repos/acme/widget/contributors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"login":"alice","contributions":50},{"login":"bob","contributions":2}]`)
	})
	mux.HandleFunc("/repos/acme/widget/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"sha":"abc"}]`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCrawl_EndToEnd(t *testing.T) {
	server := fakeAPI(t, 0)
	ws := newWorkspace(t,
		`{"总序号":1,"github链接":"https://github.com/acme/widget","标题":"A paper"}`,
		`{"总序号":2,"github链接":"not-a-url"}`,
	)

	var stdout, stderr bytes.Buffer
	events := filepath.Join(ws.dir, "events.ndjson")
	code := run(ws.args("crawl", "--token", "t", "--github-api-url", server.URL, "--pace", "0s", "--events-file", events), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
	}

	recs, corrupt, err := output.ReadRecordsFile(ws.output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if corrupt != 0 || len(recs) != 1 {
		t.Fatalf("want 1 record and no corrupt lines, got %d / %d", len(recs), corrupt)
	}
	if recs[0].ID != 1 || recs[0].Failed() || *recs[0].Stargazers != 120 || len(recs[0].Contributors) != 2 {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
	if _, err := os.Stat(ws.checkpoint); !os.IsNotExist(err) {
		t.Fatalf("checkpoint should be cleared, stat err = %v", err)
	}
	for _, want := range []string{"Starting sweep over 2 items", "skipped:", "Sweep completed: 2 processed (1 ok, 0 failed, 1 skipped)"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
		}
	}

	data, err := os.ReadFile(events)
	if err != nil {
		t.Fatalf("read events file: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("want 6 events (run, 2x item started, finished, skipped, run), got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"type":"run.started"`) || !strings.Contains(lines[5], `"type":"run.finished"`) {
		t.Fatalf("unexpected event order:\n%s", data)
	}
}

func TestCrawl_RecordUnresolvableViaEnv(t *testing.T) {
	server := fakeAPI(t, 0)
	ws := newWorkspace(t, `{"总序号":9,"github链接":"https://gitlab.com/a/b"}`)
	t.Setenv("OPENRANK_RECORD_UNRESOLVABLE", "true")

	var stdout, stderr bytes.Buffer
	code := run(ws.args("crawl", "--token", "t", "--github-api-url", server.URL, "--pace", "0s", "--quiet"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
	}
	recs, _, err := output.ReadRecordsFile(ws.output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(recs) != 1 || recs[0].ErrorMessage() != "UnsupportedReferenceKind: https://gitlab.com/a/b" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if strings.Contains(stdout.String(), "[1/1]") {
		t.Fatalf("--quiet should hide item lines:\n%s", stdout.String())
	}
}

func TestCrawl_FatalErrors(t *testing.T) {
	cases := []struct {
		name       string
		userStatus int
		extra      []string
		noInput    bool
		want       string
	}{
		{name: "bad credentials", userStatus: http.StatusUnauthorized, want: "github authentication failed"},
		{name: "missing input", noInput: true, want: "input"},
		{name: "negative pace", extra: []string{"--pace", "-1s"}, want: "--pace"},
		{name: "bad console format", extra: []string{"--console-format", "json"}, want: "--console-format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := fakeAPI(t, tc.userStatus)
			ws := newWorkspace(t, `{"总序号":1,"github链接":"https://github.com/acme/widget"}`)
			if tc.noInput {
				if err := os.Remove(ws.input); err != nil {
					t.Fatal(err)
				}
			}
			args := ws.args("crawl", "--token", "t", "--github-api-url", server.URL, "--pace", "0s")
			args = append(args, tc.extra...)

			var stdout, stderr bytes.Buffer
			if code := run(args, &stdout, &stderr); code != 3 {
				t.Fatalf("exit code = %d, want 3; stderr=%s", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("stderr missing %q: %s", tc.want, stderr.String())
			}
			if _, err := os.Stat(ws.output); !os.IsNotExist(err) {
				t.Fatalf("no output file expected before preflight succeeds")
			}
		})
	}
}

func TestStatus(t *testing.T) {
	ws := newWorkspace(t,
		`{"总序号":10,"github链接":"https://github.com/a/one"}`,
		`{"总序号":20,"github链接":"https://github.com/a/two"}`,
		`{"总序号":30,"github链接":"https://github.com/a/three"}`,
		`{"总序号":40,"github链接":"https://github.com/a/four"}`,
	)
	if err := os.WriteFile(ws.checkpoint, []byte("20"), 0o644); err != nil {
		t.Fatal(err)
	}
	log := strings.Join([]string{
		`{"总序号":10,"github链接":"https://github.com/a/one","error":null}`,
		`{"总序号":20,"github链接":"https://github.com/a/two","error":"RemoteAPIError: 404 - Not Found"}`,
		`{"总序号":20,"github链接":"https://github.com/a/two","error":"RemoteAPIError: 404 - Not Found"}`,
		`{"总序号":30,"gith`,
	}, "\n")
	if err := os.WriteFile(ws.output, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(ws.args("status"), &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"4 items", "#20", "item 3 of 4 (50.0% done)", "4 lines", "RemoteAPIError 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatus_UnknownCheckpointWarns(t *testing.T) {
	ws := newWorkspace(t, `{"总序号":1,"github链接":"https://github.com/a/one"}`)
	if err := os.WriteFile(ws.checkpoint, []byte("77"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if code := run(ws.args("status"), &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "checkpoint #77 is not in the input") {
		t.Fatalf("missing restart warning:\n%s", stdout.String())
	}
}

func TestDedupe(t *testing.T) {
	ws := newWorkspace(t, `{"总序号":1,"github链接":"https://github.com/a/one"}`)
	log := strings.Join([]string{
		`{"总序号":5,"github链接":"u5","error":"UnknownError: timeout"}`,
		`{"总序号":6,"github链接":"u6","error":null}`,
		`garbage`,
		`{"总序号":5,"github链接":"u5","stargazers_count":3,"error":null}`,
	}, "\n") + "\n"
	if err := os.WriteFile(ws.output, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(ws.output, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if code := run(ws.args("dedupe"), &stdout, &stderr); code != 0 {
			t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
		}
		recs, _, err := output.ReadRecords(&stdout)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 || recs[0].ID != 5 || recs[0].Failed() || recs[1].ID != 6 {
			t.Fatalf("unexpected dedupe result: %+v", recs)
		}
		if !strings.Contains(stderr.String(), "kept 2 of 3 records (1 duplicates, 1 corrupt lines dropped)") {
			t.Fatalf("unexpected summary: %s", stderr.String())
		}
	})

	t.Run("dest and in-place are exclusive", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if code := run(ws.args("dedupe", "--in-place", filepath.Join(ws.dir, "x.jsonl")), &stdout, &stderr); code != 3 {
			t.Fatalf("exit code = %d, want 3", code)
		}
	})

	t.Run("in place", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if code := run(ws.args("dedupe", "--in-place"), &stdout, &stderr); code != 0 {
			t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
		}
		recs, corrupt, err := output.ReadRecordsFile(ws.output)
		if err != nil {
			t.Fatal(err)
		}
		if corrupt != 0 || len(recs) != 2 {
			t.Fatalf("want 2 clean records, got %d (corrupt %d)", len(recs), corrupt)
		}
		assertMode(t, ws.output, 0o644)
	})
}

func TestReplaceFileKeepsMode(t *testing.T) {
	dir := t.TempDir()
	write := func(w io.Writer) error {
		_, err := io.WriteString(w, "{}\n")
		return err
	}

	existing := filepath.Join(dir, "existing.jsonl")
	if err := os.WriteFile(existing, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(existing, 0o640); err != nil {
		t.Fatal(err)
	}
	if err := replaceFile(existing, write); err != nil {
		t.Fatalf("replaceFile failed: %v", err)
	}
	assertMode(t, existing, 0o640)

	fresh := filepath.Join(dir, "fresh.jsonl")
	if err := replaceFile(fresh, write); err != nil {
		t.Fatalf("replaceFile failed: %v", err)
	}
	assertMode(t, fresh, 0o644)

	data, err := os.ReadFile(existing)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}\n" {
		t.Fatalf("content = %q", data)
	}
}

func assertMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != want {
		t.Fatalf("%s mode = %o, want %o", filepath.Base(path), got, want)
	}
}

func TestConfigFile(t *testing.T) {
	ws := newWorkspace(t, `{"总序号":1,"github链接":"https://github.com/a/one"}`)
	cfgPath := filepath.Join(ws.dir, "openrank.yaml")
	body := fmt.Sprintf("input: %s\ncheckpoint: %s\noutput: %s\n", ws.input, ws.checkpoint, ws.output)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"status", "--config", cfgPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d; stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), ws.input) {
		t.Fatalf("config file input path not used:\n%s", stdout.String())
	}

	if code := run([]string{"status", "--config", filepath.Join(ws.dir, "missing.yaml")}, &stdout, &stderr); code != 3 {
		t.Fatalf("missing config file: exit code = %d, want 3", code)
	}
}

func TestVersionAndUsageErrors(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2025-06-01")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("version exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "openrank 1.2.3") || !strings.Contains(stdout.String(), "commit: abc123") {
		t.Fatalf("unexpected version output: %s", stdout.String())
	}

	stderr.Reset()
	if code := run([]string{"crawl", "--no-such-flag"}, &stdout, &stderr); code != 3 {
		t.Fatalf("unknown flag exit code = %d, want 3", code)
	}
	if !strings.Contains(stderr.String(), "unknown flag") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestExitError(t *testing.T) {
	e := &ExitError{Code: 130}
	if e.Error() != "exit status 130" {
		t.Fatalf("Error() = %q", e.Error())
	}
}
