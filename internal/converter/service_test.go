package converter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/convertertest"
	"github.com/cuongbtq/media-fetcher/internal/converter/delivery"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/converter/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "https://example/video123"

var errClientGone = errors.New("broken pipe")

type stubProvisioner struct {
	path  string
	err   error
	calls int
}

func (p *stubProvisioner) Ensure(context.Context) (*domain.Executable, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &domain.Executable{Path: p.path, Verified: true}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) events.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

type bufferSink struct {
	bytes.Buffer
	meta      delivery.Metadata
	failAfter int
}

func (s *bufferSink) SetMetadata(m delivery.Metadata) { s.meta = m }

func (s *bufferSink) Write(p []byte) (int, error) {
	if s.failAfter > 0 && s.Len()+len(p) > s.failAfter {
		return 0, errClientGone
	}
	return s.Buffer.Write(p)
}

type fixture struct {
	service     *Service
	provisioner *stubProvisioner
	publisher   *recordingPublisher
	workDir     string
}

func newFixture(t *testing.T, stubBody string, mutate func(*Config)) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		provisioner: &stubProvisioner{path: convertertest.Write(t, stubBody)},
		publisher:   &recordingPublisher{},
		workDir:     t.TempDir(),
	}
	cfg := Config{WorkDir: f.workDir, Mode: domain.DeliveryBuffered}
	if mutate != nil {
		mutate(&cfg)
	}
	runner := process.NewRunner(process.Config{KillGrace: time.Second}, logger)
	f.service = NewService(cfg, f.provisioner, runner, f.publisher, logger)
	return f
}

func (f *fixture) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "job directories must be removed")
}

func TestConvert_BufferedAudio(t *testing.T) {
	f := newFixture(t, convertertest.Success, nil)
	sink := &bufferSink{}

	outcome, err := f.service.Convert(context.Background(), domain.Request{
		SourceReference: testSource,
		OutputKind:      "audio",
	}, sink)

	require.NoError(t, err)
	want := "converted:" + testSource
	assert.Equal(t, want, sink.String())
	assert.Equal(t, "audio/mpeg", sink.meta.ContentType)
	assert.Equal(t, "audio.mp3", sink.meta.Filename)
	assert.Equal(t, int64(len(want)), sink.meta.Size)

	assert.Equal(t, domain.KindAudio, outcome.Kind)
	assert.Equal(t, domain.DeliveryBuffered, outcome.Mode)
	assert.Equal(t, int64(len(want)), outcome.BytesDelivered)
	f.assertWorkDirEmpty(t)

	ev := f.publisher.last(t)
	assert.Equal(t, events.TypeCompleted, ev.Type)
	assert.Equal(t, outcome.JobID, ev.JobID)
	assert.Equal(t, int64(len(want)), ev.BytesDelivered)
}

func TestConvert_DirectVideo(t *testing.T) {
	f := newFixture(t, convertertest.Success, func(c *Config) {
		c.Mode = domain.DeliveryDirect
	})
	sink := &bufferSink{}

	outcome, err := f.service.Convert(context.Background(), domain.Request{
		SourceReference: testSource,
		OutputKind:      "mp4",
	}, sink)

	require.NoError(t, err)
	assert.Equal(t, "converted:"+testSource, sink.String())
	assert.Equal(t, "video/mp4", sink.meta.ContentType)
	assert.Equal(t, "video_360p.mp4", sink.meta.Filename)
	assert.Equal(t, int64(-1), sink.meta.Size)
	assert.Equal(t, domain.DeliveryDirect, outcome.Mode)
	f.assertWorkDirEmpty(t)
}

func TestConvert_ValidationHappensFirst(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.Request
		wantErr error
	}{
		{name: "empty source", req: domain.Request{OutputKind: "audio"}, wantErr: domain.ErrMissingField},
		{name: "unknown kind", req: domain.Request{SourceReference: testSource, OutputKind: "flac"}, wantErr: domain.ErrUnsupportedKind},
		{name: "not a url", req: domain.Request{SourceReference: "-f best", OutputKind: "audio"}, wantErr: domain.ErrInvalidSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, convertertest.Success, nil)
			sink := &bufferSink{}

			outcome, err := f.service.Convert(context.Background(), tt.req, sink)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Nil(t, outcome)
			assert.Zero(t, f.provisioner.calls, "nothing may be provisioned for an invalid request")
			assert.Zero(t, sink.Len())
			assert.Empty(t, f.publisher.events)
			f.assertWorkDirEmpty(t)
		})
	}
}

func TestConvert_ProvisioningFailure(t *testing.T) {
	f := newFixture(t, convertertest.Success, nil)
	f.provisioner.err = domain.NewError(domain.KindProvisioning, "provision executable", domain.ErrTooManyRedirects)

	_, err := f.service.Convert(context.Background(), domain.Request{SourceReference: testSource, OutputKind: "audio"}, &bufferSink{})

	require.Error(t, err)
	assert.Equal(t, domain.KindProvisioning, domain.KindOf(err))
	f.assertWorkDirEmpty(t)

	ev := f.publisher.last(t)
	assert.Equal(t, events.TypeFailed, ev.Type)
	assert.Equal(t, "provisioning", ev.ErrorKind)
}

func TestConvert_ConverterFailureCleansUp(t *testing.T) {
	f := newFixture(t, convertertest.Failure, nil)
	sink := &bufferSink{}

	_, err := f.service.Convert(context.Background(), domain.Request{SourceReference: testSource, OutputKind: "audio"}, sink)

	require.Error(t, err)
	assert.Equal(t, domain.KindExecution, domain.KindOf(err))
	assert.Equal(t, 500, domain.HTTPStatus(err))
	var convErr *domain.ConversionFailedError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, 1, convErr.ExitCode)
	assert.Zero(t, sink.Len())
	f.assertWorkDirEmpty(t)

	ev := f.publisher.last(t)
	assert.Equal(t, events.StatusFailed, ev.Status)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 1, *ev.ExitCode)
}

func TestConvert_ArtifactMissing(t *testing.T) {
	for _, mode := range []domain.DeliveryMode{domain.DeliveryBuffered, domain.DeliveryDirect} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, convertertest.NoOutput, func(c *Config) { c.Mode = mode })

			_, err := f.service.Convert(context.Background(), domain.Request{SourceReference: testSource, OutputKind: "audio"}, &bufferSink{})

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrArtifactMissing)
			f.assertWorkDirEmpty(t)
		})
	}
}

func TestConvert_JobTimeout(t *testing.T) {
	f := newFixture(t, convertertest.Hang, func(c *Config) {
		c.JobTimeout = 200 * time.Millisecond
	})

	_, err := f.service.Convert(context.Background(), domain.Request{SourceReference: testSource, OutputKind: "audio"}, &bufferSink{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.KindExecution, domain.KindOf(err))
	f.assertWorkDirEmpty(t)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Config{}, &stubProvisioner{}, nil, nil, slog.Default())

	assert.Equal(t, domain.DeliveryBuffered, s.Mode())
	assert.Equal(t, os.TempDir(), s.cfg.WorkDir)
	assert.Equal(t, DefaultPublishTimeout, s.cfg.PublishTimeout)
	assert.IsType(t, events.NopPublisher{}, s.publisher)
}
