package builtin_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"ctfoj/internal/builtin"
	"ctfoj/internal/challenge"
	"ctfoj/internal/event"
	"ctfoj/internal/sandbox"
)

func TestRegisterAllNames(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	want := []string{"Basic", "DockerHelloWorld", "FormExample", "FromFolder", "MultiStageExample", "Stage", "TcpServer", "WebServer"}
	got := h.registry.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBasicTitleFromArgs(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	inst := h.resolve(t, "Basic(Attendance, day 1)")
	if inst.Definition().Title() != "Attendance, day 1" {
		t.Fatalf("unexpected title %q", inst.Definition().Title())
	}
}

func TestFormExample(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	def := h.start(t, "FormExample").Definition()
	ctx := context.Background()

	resp, err := def.HandlePost(ctx, "alice", &challenge.Request{Method: http.MethodPost, Body: []byte(`{"ip":"10.0.0.1"}`)})
	if err != nil || resp.Status != http.StatusBadRequest {
		t.Fatalf("expected wrong answer to be rejected, got %+v, %v", resp, err)
	}
	resp, err = def.HandlePost(ctx, "alice", &challenge.Request{Method: http.MethodPost, Body: []byte(`not json`)})
	if err != nil || resp.Status != http.StatusBadRequest {
		t.Fatalf("expected malformed body to be rejected, got %+v, %v", resp, err)
	}

	resp, err = def.HandlePost(ctx, "alice", &challenge.Request{Method: http.MethodPost, Body: []byte(`{"ip":"127.0.0.1"}`), RemoteIP: "10.1.1.1"})
	if err != nil {
		t.Fatalf("handle post failed: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "__flag__{issued}" {
		t.Fatalf("expected a flag, got %d %q", resp.Status, resp.Body)
	}
	issued := h.flags.all()
	if len(issued) != 1 || issued[0].CID != "FormExample" || issued[0].UID != "alice" || issued[0].Max != 1 {
		t.Fatalf("unexpected issued flags %+v", issued)
	}
}

func TestMultiStageFlags(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	h.resolve(t, "MultiStageExample")
	issued := h.flags.all()
	if len(issued) != 2 {
		t.Fatalf("expected two static flags, got %+v", issued)
	}
	if issued[0].CID != "MultiStageExample" || issued[1].CID != builtin.StageID("MultiStageExample") {
		t.Fatalf("unexpected stage targets %+v", issued)
	}
	for _, f := range issued {
		if f.Max != challenge.StaticFlagMaxSubmissions {
			t.Fatalf("static flags should be effectively unlimited, got %d", f.Max)
		}
	}

	stage := h.resolve(t, builtin.StageID("MultiStageExample")).Definition()
	if stage.Title() != "MultiStageExample (next stage)" {
		t.Fatalf("unexpected stage title %q", stage.Title())
	}
	if visible, _ := stage.Visible(context.Background(), "alice"); visible {
		t.Fatalf("stage should stay hidden")
	}
}

func TestTcpServer(t *testing.T) {
	h := newHarness(t, builtin.Options{Host: "ctf.example"})
	inst := h.start(t, "TcpServer(127.0.0.1:0)")
	srv := inst.Definition().(*builtin.TcpServer)
	addr := srv.Addr().String()

	desc, _ := srv.Description(context.Background(), "alice", false)
	if !strings.Contains(desc, "ctf.example:0") {
		t.Fatalf("description should name the configured host, got %q", desc)
	}

	reply := tcpExchange(t, addr, "the answer is 42\n")
	if !strings.HasPrefix(reply, "What's the answer") || !strings.Contains(reply, "__flag__{issued}\n") {
		t.Fatalf("expected question and flag, got %q", reply)
	}
	reply = tcpExchange(t, addr, "7\n")
	if !strings.HasSuffix(reply, "Not convinced!\n") {
		t.Fatalf("expected refusal, got %q", reply)
	}
	reply = tcpExchange(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(reply, "HTTP/1.1 400 Bad Request") {
		t.Fatalf("expected http probe reply, got %q", reply)
	}

	if issued := h.flags.all(); len(issued) != 1 {
		t.Fatalf("expected exactly one flag, got %+v", issued)
	}
	if !h.events.has("connected") || !h.events.has("fail") {
		t.Fatalf("expected connection events, got %v", h.events.types)
	}

	if err := inst.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Fatalf("listener should be closed after stop")
	}
}

func tcpExchange(t *testing.T, addr, send string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(send)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(reply)
}

func TestWebServer(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	inst := h.start(t, "WebServer(127.0.0.1:0)")
	srv := inst.Definition().(*builtin.WebServer)

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "Hello World." {
		t.Fatalf("unexpected reply %d %q", resp.StatusCode, body)
	}
	if !h.events.has(event.TypeHandleRequest) {
		t.Fatalf("expected request to be recorded")
	}
}

func TestDockerHelloWorld(t *testing.T) {
	runner := &dockerRunner{}
	executor := sandbox.NewExecutor(sandbox.Config{Timeout: 5 * time.Second}, runner)
	h := newHarness(t, builtin.Options{Sandbox: executor, HelloWorldBuildContext: "deploy/hello"})
	def := h.start(t, "DockerHelloWorld").Definition()
	ctx := context.Background()

	build := runner.last("build")
	if build == nil || build[len(build)-1] != "deploy/hello" {
		t.Fatalf("expected image build from context, got %v", build)
	}
	if tagger, ok := def.(challenge.Tagger); !ok || strings.Join(tagger.Tags(), ",") != "sandbox" {
		t.Fatalf("expected sandbox tag")
	}

	resp, err := def.HandlePost(ctx, "alice", &challenge.Request{Body: []byte(`{"command":"python -c 'print(1+1)'"}`)})
	if err != nil {
		t.Fatalf("handle post failed: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "2" {
		t.Fatalf("unexpected reply %d %q", resp.Status, resp.Body)
	}
	run := runner.last("run")
	if got := strings.Join(run[len(run)-3:], "|"); got != "python|-c|print(1+1)" {
		t.Fatalf("expected shell-split command, got %q", got)
	}
	if !h.events.has(event.TypeSandboxRun) {
		t.Fatalf("expected sandbox run to be recorded")
	}

	resp, err = def.HandlePost(ctx, "alice", &challenge.Request{Body: []byte(`{"command":"echo 'unterminated"}`)})
	if err != nil || resp.Status != http.StatusBadRequest {
		t.Fatalf("expected bad command to be rejected, got %+v, %v", resp, err)
	}
}

func TestDockerHelloWorldRequiresExecutor(t *testing.T) {
	h := newHarness(t, builtin.Options{})
	if _, err := h.registry.Resolve(context.Background(), "DockerHelloWorld", h.rt); err == nil {
		t.Fatalf("expected missing executor to be rejected")
	}
}
