package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/config"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

type fakeApp struct {
	started   bool
	ran       bool
	closed    int
	req       pipeline.StartRequest
	genErr    error
	filename  string
	configSrv int
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) Start(context.Context) {
	f.started = true
}

func (f *fakeApp) Close(context.Context) error {
	f.closed++
	return nil
}

func (f *fakeApp) Logger() *zap.Logger {
	return zap.NewNop()
}

func (f *fakeApp) Generate(_ context.Context, req pipeline.StartRequest, _ time.Duration) (brief.JobState, error) {
	f.req = req
	if f.genErr != nil {
		return brief.JobState{}, f.genErr
	}
	state := brief.NewJobState()
	state.FinalBrief = &brief.StageOutput{Filename: f.filename}
	return state, nil
}

// withFakeApp swaps the factory; tests using it must not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	prev := newApp
	newApp = func(_ context.Context, cfg *config.Config) (App, error) {
		app.configSrv = cfg.Server.Port
		return app, nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)
	t.Setenv("BRIEF_SERVER_PORT", "9191")

	_, err := execute("serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
	assert.Equal(t, 9191, app.configSrv)
	assert.Equal(t, 1, app.closed)
}

func TestGeneratePrintsFilename(t *testing.T) {
	app := &fakeApp{filename: "brief_BUD15_20240501_120000.json"}
	withFakeApp(t, app)

	out, err := execute("generate", "--keyword", "budget planning", "--theme", "FP&A", "--persona", "CFO")
	require.NoError(t, err)
	assert.True(t, app.started)
	assert.Equal(t, "budget planning", app.req.FocusKeyword)
	assert.Equal(t, "CFO", app.req.BuyerPersona)
	assert.Equal(t, "brief_BUD15_20240501_120000.json", strings.TrimSpace(out))
	assert.Equal(t, 1, app.closed)
}

func TestGeneratePropagatesFailure(t *testing.T) {
	app := &fakeApp{genErr: errors.New("stage 2 failed")}
	withFakeApp(t, app)

	_, err := execute("generate", "--keyword", "k", "--theme", "t", "--persona", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage 2 failed")
	assert.Equal(t, 1, app.closed)
}

func TestInvalidConfigFails(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)
	t.Setenv("BRIEF_PIPELINE_WORKERS", "0")

	_, err := execute("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers must be > 0")
	assert.False(t, app.ran)
}
