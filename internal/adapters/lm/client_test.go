package lm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okian/textguard/internal/adapters/lm"
	"github.com/okian/textguard/internal/domain/detect"
	"github.com/okian/textguard/pkg/logger"
	"github.com/okian/textguard/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeTGI serves /generate with the given handler and counts calls.
func fakeTGI(handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	return srv, &calls
}

func prefillBody(logprobs ...*float64) string {
	type tok struct {
		ID      int      `json:"id"`
		Text    string   `json:"text"`
		Logprob *float64 `json:"logprob"`
	}
	toks := make([]tok, 0, len(logprobs))
	for i, lp := range logprobs {
		toks = append(toks, tok{ID: i, Text: "t", Logprob: lp})
	}
	b, _ := json.Marshal(map[string]any{
		"generated_text": ".",
		"details":        map[string]any{"prefill": toks},
	})
	return string(b)
}

func lp(v float64) *float64 { return &v }

// byteTokenizer counts every byte as a token, whitespace included.
type byteTokenizer struct{}

func (byteTokenizer) Count(text string) int { return len(text) }

func newTestClient(endpoint string, retries int) *lm.Client {
	c, err := lm.NewClient(
		lm.Snapshot{ModelName: "gpt2", Endpoint: endpoint, MaxRetries: retries, TimeoutMS: 2000},
		lm.WithTokenizer(lm.FieldsTokenizer{}),
		lm.WithLogger(logger.Named("lm-test")),
		lm.WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))),
	)
	So(err, ShouldBeNil)
	return c
}

func TestClientLoss(t *testing.T) {
	Convey("Given a client talking to a fake inference server", t, func() {
		So(logger.InitWith(io.Discard, "text"), ShouldBeNil)
		ctx := context.Background()

		Convey("When the server returns prompt logprobs", func() {
			var got map[string]any
			srv, _ := fakeTGI(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = io.WriteString(w, prefillBody(nil, lp(-2), lp(-4)))
			})
			defer srv.Close()
			c := newTestClient(srv.URL+"/", 0)

			loss, err := c.Loss(ctx, "the cat sat")

			Convey("Then the mean skips the unscored first token", func() {
				So(err, ShouldBeNil)
				So(loss.Tokens, ShouldEqual, 3)
				So(loss.Mean, ShouldAlmostEqual, 3.0)
				So(c.Name(), ShouldEqual, "gpt2")
			})

			Convey("And the request asks for decoder input details", func() {
				So(got["inputs"], ShouldEqual, "the cat sat")
				params, ok := got["parameters"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(params["decoder_input_details"], ShouldEqual, true)
				So(params["max_new_tokens"], ShouldEqual, float64(1))
			})
		})

		Convey("When the prompt is a single token", func() {
			srv, _ := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, prefillBody(nil))
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 0)

			loss, err := c.Loss(ctx, "cat")

			Convey("Then the loss is zero and perplexity is one", func() {
				So(err, ShouldBeNil)
				So(loss.Tokens, ShouldEqual, 1)
				So(math.Exp(loss.Mean), ShouldEqual, 1)
			})
		})

		Convey("When the text is blank", func() {
			srv, calls := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, prefillBody(nil))
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 0)

			_, err := c.Loss(ctx, "  \n\t ")

			Convey("Then it fails without calling the server", func() {
				So(errors.Is(err, detect.ErrEmptyText), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the text is blank and the tokenizer counts whitespace", func() {
			srv, calls := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, prefillBody(nil))
			})
			defer srv.Close()
			c, err := lm.NewClient(
				lm.Snapshot{ModelName: "gpt2", Endpoint: srv.URL, TimeoutMS: 2000},
				lm.WithTokenizer(byteTokenizer{}),
				lm.WithLogger(logger.Named("lm-test")),
				lm.WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))),
			)
			So(err, ShouldBeNil)

			_, err = c.Loss(ctx, " ")

			Convey("Then it is still rejected before the server", func() {
				So(errors.Is(err, detect.ErrEmptyText), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the server answers with a client error", func() {
			srv, calls := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"Input validation error"}`, http.StatusUnprocessableEntity)
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 3)

			_, err := c.Loss(ctx, "some text")

			Convey("Then the status and body surface as ErrUpstream without retries", func() {
				So(errors.Is(err, lm.ErrUpstream), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "422")
				So(err.Error(), ShouldContainSubstring, "Input validation error")
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the server fails once and then recovers", func() {
			var n atomic.Int32
			srv, calls := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				if n.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = io.WriteString(w, prefillBody(nil, lp(-1)))
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 1)

			loss, err := c.Loss(ctx, "two words")

			Convey("Then the retry succeeds", func() {
				So(err, ShouldBeNil)
				So(loss.Mean, ShouldAlmostEqual, 1.0)
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the server keeps failing and retries are disabled", func() {
			srv, calls := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 0)

			_, err := c.Loss(ctx, "two words")

			Convey("Then a single attempt is made", func() {
				So(errors.Is(err, lm.ErrUpstream), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "503")
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the response is not the expected shape", func() {
			cases := map[string]string{
				"not json":        "<html>",
				"missing details": `{"generated_text":"x"}`,
				"no logprobs":     prefillBody(nil, nil),
			}
			for name, body := range cases {
				body := body
				Convey("Then "+name+" is ErrMalformed", func() {
					srv, _ := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
						_, _ = io.WriteString(w, body)
					})
					defer srv.Close()
					c := newTestClient(srv.URL, 0)

					_, err := c.Loss(ctx, "some text")
					So(errors.Is(err, lm.ErrMalformed), ShouldBeTrue)
				})
			}
		})

		Convey("When the server returns an empty prefill", func() {
			srv, _ := fakeTGI(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, prefillBody())
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 0)

			_, err := c.Loss(ctx, "some text")

			Convey("Then the text counts as empty", func() {
				So(errors.Is(err, detect.ErrEmptyText), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			srv, _ := fakeTGI(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
				_, _ = io.WriteString(w, prefillBody(nil, lp(-1)))
			})
			defer srv.Close()
			c := newTestClient(srv.URL, 2)

			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err := c.Loss(cctx, "some text")

			Convey("Then the call fails with the context error", func() {
				So(errors.Is(err, lm.ErrUpstream), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestNewClient(t *testing.T) {
	Convey("Given an invalid snapshot", t, func() {
		So(logger.InitWith(io.Discard, "text"), ShouldBeNil)
		_, err := lm.NewClient(lm.Snapshot{ModelName: "gpt2"})

		Convey("Then no client is built", func() {
			So(errors.Is(err, lm.ErrSnapshotInvalid), ShouldBeTrue)
		})
	})
}
