package brick

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/brickheat/pkg/console"
	"github.com/itohio/brickheat/pkg/fsmem"
	"github.com/itohio/brickheat/pkg/rtcmem"
)

// recorder collects the calls of all fake features in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, a ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, a...))
}

type fakeRegion struct {
	Cycles int
}

type fakeFeature struct {
	name  string
	rec   *recorder
	rtc   *rtcmem.Memory
	state fakeRegion
	fail  map[string]error
	in    Document
	menu  string
}

func newFakeFeature(t *testing.T, name string, rec *recorder, rtc *rtcmem.Memory) *fakeFeature {
	t.Helper()
	f := &fakeFeature{name: name, rec: rec, rtc: rtc, fail: map[string]error{}}
	require.NoError(t, rtc.Register(name+"/1", &f.state))
	return f
}

func (f *fakeFeature) Name() string    { return f.name }
func (f *fakeFeature) Version() uint16 { return 1 }

func (f *fakeFeature) step(stage string) error {
	f.rec.add("%s.%s", f.name, stage)
	return f.fail[stage]
}

func (f *fakeFeature) Begin(ctx context.Context) error {
	f.rec.add("%s.begin(valid=%t)", f.name, f.rtc.Valid())
	return f.fail["begin"]
}

func (f *fakeFeature) Start(ctx context.Context) error { return f.step("start") }

func (f *fakeFeature) Deliver(ctx context.Context, out Document) error {
	f.state.Cycles++
	out.Append("t", f.name, f.state.Cycles)
	return f.step("deliver")
}

func (f *fakeFeature) Feedback(ctx context.Context, in Document) error {
	f.in = in
	return f.step("feedback")
}

func (f *fakeFeature) End(ctx context.Context) error { return f.step("end") }

func (f *fakeFeature) DescribeRetained(w io.Writer) {
	fmt.Fprintf(w, "  cycles: %d\n", f.state.Cycles)
}

func (f *fakeFeature) DescribePersistent(w io.Writer) {
	fmt.Fprintf(w, "  name: %s\n", f.name)
}

func (f *fakeFeature) RunSetupMenu(ctx context.Context, con *console.Console) error {
	line, err := con.ReadLine("value: ")
	if err != nil {
		return err
	}
	f.menu = line
	return nil
}

type fakeExchanger struct {
	sent  []Document
	reply Document
	err   error
}

func (e *fakeExchanger) Exchange(ctx context.Context, out Document) (Document, error) {
	e.sent = append(e.sent, out)
	return e.reply, e.err
}

type testHost struct {
	backend *rtcmem.MemBackend
	rtc     *rtcmem.Memory
	fs      *fsmem.Store
	ex      *fakeExchanger
	rec     *recorder
	brick   *Brick
}

func newTestHost(t *testing.T, backend *rtcmem.MemBackend, names ...string) (*testHost, []*fakeFeature) {
	t.Helper()
	fs, err := fsmem.Open(t.TempDir() + "/fs.yaml")
	require.NoError(t, err)

	h := &testHost{
		backend: backend,
		rtc:     rtcmem.New(backend, nil),
		fs:      fs,
		ex:      &fakeExchanger{reply: Document{"h": 1}},
		rec:     &recorder{},
	}
	h.brick = New(h.rtc, h.fs, h.ex, nil)

	var features []*fakeFeature
	for _, n := range names {
		f := newFakeFeature(t, n, h.rec, h.rtc)
		require.NoError(t, h.brick.Register(f))
		features = append(features, f)
	}
	return h, features
}

func TestBrick_Register(t *testing.T) {
	h, _ := newTestHost(t, rtcmem.NewMemBackend(), "heat")

	dup := &fakeFeature{name: "heat", rec: h.rec, rtc: h.rtc}
	assert.Error(t, h.brick.Register(dup))

	require.NoError(t, h.brick.Boot(context.Background()))
	late := &fakeFeature{name: "late", rec: h.rec, rtc: h.rtc}
	assert.Error(t, h.brick.Register(late))
	assert.Len(t, h.brick.Features(), 1)
}

func TestBrick_CycleOrder(t *testing.T) {
	h, features := newTestHost(t, rtcmem.NewMemBackend(), "a", "b")

	require.NoError(t, h.brick.Boot(context.Background()))
	require.NoError(t, h.brick.Cycle(context.Background()))

	assert.Equal(t, []string{
		"a.begin(valid=false)", "b.begin(valid=false)",
		"a.start", "b.start",
		"a.deliver", "b.deliver",
		"a.feedback", "b.feedback",
		"a.end", "b.end",
	}, h.rec.calls)

	require.Len(t, h.ex.sent, 1)
	assert.Equal(t, []any{[]any{"a", 1}, []any{"b", 1}}, h.ex.sent[0]["t"])
	assert.Equal(t, Document{"h": 1}, features[1].in)
}

func TestBrick_WarmBootAfterCycle(t *testing.T) {
	backend := rtcmem.NewMemBackend()
	h, _ := newTestHost(t, backend, "a")
	require.NoError(t, h.brick.Boot(context.Background()))
	require.NoError(t, h.brick.Cycle(context.Background()))

	h2, features := newTestHost(t, backend, "a")
	require.NoError(t, h2.brick.Boot(context.Background()))
	assert.Equal(t, []string{"a.begin(valid=true)"}, h2.rec.calls)
	assert.Equal(t, 1, features[0].state.Cycles)
}

func TestBrick_ExchangeFailureSkipsFeedback(t *testing.T) {
	backend := rtcmem.NewMemBackend()
	h, _ := newTestHost(t, backend, "a")
	h.ex.err = errors.New("controller unreachable")

	require.NoError(t, h.brick.Boot(context.Background()))
	err := h.brick.Cycle(context.Background())
	assert.ErrorIs(t, err, h.ex.err)
	assert.NotContains(t, h.rec.calls, "a.feedback")
	assert.Contains(t, h.rec.calls, "a.end")

	blob, _ := backend.Load()
	assert.NotNil(t, blob, "retained memory saved anyway")
}

func TestBrick_FeatureFailureContinues(t *testing.T) {
	h, features := newTestHost(t, rtcmem.NewMemBackend(), "a", "b")
	boom := errors.New("sensor bus stuck")
	features[0].fail["deliver"] = boom

	require.NoError(t, h.brick.Boot(context.Background()))
	err := h.brick.Cycle(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "a deliver")
	assert.Contains(t, h.rec.calls, "b.deliver")
	assert.Contains(t, h.rec.calls, "b.feedback")
}

func TestBrick_Run(t *testing.T) {
	backend := rtcmem.NewMemBackend()
	h, features := newTestHost(t, backend, "a")

	require.NoError(t, h.brick.Run(context.Background(), time.Millisecond, 3))
	assert.Equal(t, 3, features[0].state.Cycles)
	assert.Equal(t, "a.begin(valid=false)", h.rec.calls[0])
	assert.Contains(t, h.rec.calls, "a.begin(valid=true)")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.brick.Run(ctx, time.Hour, 0), context.Canceled)
}

func runSetup(t *testing.T, h *testHost, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	con := console.New(console.NewScanner(strings.NewReader(input), &out), &out)
	err := h.brick.Setup(context.Background(), con)
	return out.String(), err
}

func TestSetup_Describe(t *testing.T) {
	h, _ := newTestHost(t, rtcmem.NewMemBackend(), "a", "b")
	require.NoError(t, h.brick.Boot(context.Background()))

	out, err := runSetup(t, h, "1\n2\n9\n")
	require.NoError(t, err)
	assert.Contains(t, out, "RTC data:\n a:\n  cycles: 0\n b:\n  cycles: 0\n")
	assert.Contains(t, out, "FS data:\n a:\n  name: a\n b:\n  name: b\n")
	assert.Contains(t, out, "Leaving setup.")
}

func TestSetup_InvalidInput(t *testing.T) {
	h, _ := newTestHost(t, rtcmem.NewMemBackend(), "a")
	require.NoError(t, h.brick.Boot(context.Background()))

	out, err := runSetup(t, h, "7\n")
	require.NoError(t, err, "end of input leaves setup")
	assert.Contains(t, out, "Invalid input!")
	assert.Equal(t, 2, strings.Count(out, "4) Feature setup"))
}

func TestSetup_ResetRTC(t *testing.T) {
	backend := rtcmem.NewMemBackend()
	h, _ := newTestHost(t, backend, "a")
	require.NoError(t, h.brick.Boot(context.Background()))
	require.NoError(t, h.brick.Cycle(context.Background()))

	out, err := runSetup(t, h, "3\n9\n")
	require.NoError(t, err)
	assert.Contains(t, out, "RTC memory invalidated")

	blob, _ := backend.Load()
	assert.Nil(t, blob, "exit must not re-save the invalidated memory")

	h2, _ := newTestHost(t, backend, "a")
	require.NoError(t, h2.brick.Boot(context.Background()))
	assert.Equal(t, []string{"a.begin(valid=false)"}, h2.rec.calls)
}

func TestSetup_FeatureMenu(t *testing.T) {
	h, features := newTestHost(t, rtcmem.NewMemBackend(), "a", "b")
	require.NoError(t, h.brick.Boot(context.Background()))

	out, err := runSetup(t, h, "4\n2\nhello\n4\n5\n9\n")
	require.NoError(t, err)
	assert.Contains(t, out, "1) a (v1)\n2) b (v1)\n")
	assert.Equal(t, "hello", features[1].menu)
	assert.Empty(t, features[0].menu)
	assert.Contains(t, out, "Invalid feature!")
}

func TestSetup_FeatureMenuEOF(t *testing.T) {
	backend := rtcmem.NewMemBackend()
	h, _ := newTestHost(t, backend, "a")
	require.NoError(t, h.brick.Boot(context.Background()))

	_, err := runSetup(t, h, "4\n1\n")
	require.NoError(t, err)

	blob, _ := backend.Load()
	assert.NotNil(t, blob, "state persisted on the way out")
}
