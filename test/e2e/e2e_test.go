// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crop-claims/internal/api"
	"crop-claims/internal/common/camunda"
	"crop-claims/internal/common/config"
	"crop-claims/internal/common/database"
	apperrors "crop-claims/internal/common/errors"
	commonhttp "crop-claims/internal/common/http"
	"crop-claims/internal/common/ledger"
	"crop-claims/internal/common/llm"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/weatherxm"
	"crop-claims/internal/models"
	"crop-claims/internal/pipeline"

	dc "crop-claims/internal/workers/claims/decide-claim"
	ed "crop-claims/internal/workers/claims/estimate-damage"
	fw "crop-claims/internal/workers/claims/fetch-weather"
	ip "crop-claims/internal/workers/claims/issue-payout"
	nc "crop-claims/internal/workers/claims/notify-claim"
)

const (
	farmer  = "0x00000000000000000000000000000000000000aa"
	testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// ==========================
// Upstream fakes
// ==========================

// weatherServer serves one station, or fails discovery when down is set.
func weatherServer(t *testing.T, down bool) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wxm-key", r.Header.Get("X-API-KEY"))
		if down {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/v1/stations/near":
			w.Write([]byte(`[{"id":"st-1","name":"Field North"}]`))
		case "/api/v1/stations/st-1/latest":
			w.Write([]byte(`{"observation":{"temperature":31,"humidity":88,"wind_speed":12,"precipitation_accumulated":140}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// chatServer answers every completion with reply and keeps the prompts.
type chatServer struct {
	*httptest.Server
	mu      sync.Mutex
	prompts []string
}

func newChatServer(t *testing.T, reply string) *chatServer {
	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.prompts = append(cs.prompts, string(body))
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(cs.Server.Close)
	return cs
}

type memoryLedger struct {
	mu      sync.Mutex
	claimed map[int64]bool
	payouts []int
	dials   int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{claimed: map[int64]bool{}}
}

func (l *memoryLedger) dial(ctx context.Context, cfg ledger.Config) (ip.Ledger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dials++
	return l, nil
}

func (l *memoryLedger) GetPolicy(ctx context.Context, policyID int64) (*models.Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &models.Policy{ID: policyID, Farmer: farmer, Active: true, Claimed: l.claimed[policyID]}, nil
}

func (l *memoryLedger) SubmitPayout(ctx context.Context, policyID int64, percent int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimed[policyID] = true
	l.payouts = append(l.payouts, percent)
	return "0xabc123", nil
}

func (l *memoryLedger) WaitMined(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	return &ledger.Receipt{TransactionHash: txHash, BlockNumber: 42}, nil
}

func (l *memoryLedger) Close() {}

type recordingSNS struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, aws.ToString(params.Message))
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

// ==========================
// Stack
// ==========================

type stack struct {
	server *httptest.Server
	claims *pipeline.Pipeline
	chat   *chatServer
	ledger *memoryLedger
	sns    *recordingSNS
	redis  *miniredis.Miniredis
}

type stackOptions struct {
	reply       string
	weatherDown bool
	privateKey  string
}

func newStack(t *testing.T, opts stackOptions) *stack {
	log := logger.NewTestLogger(t)
	s := &stack{
		chat:   newChatServer(t, opts.reply),
		ledger: newMemoryLedger(),
		sns:    &recordingSNS{},
		redis:  miniredis.RunT(t),
	}

	redis, err := database.NewRedis(config.RedisConfig{Address: s.redis.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redis.Close() })

	wx := weatherServer(t, opts.weatherDown)
	stations := weatherxm.NewClient("wxm-key", wx.URL, commonhttp.NewClient(5*time.Second))
	chat := llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: "sk-test", BaseURL: s.chat.URL}, commonhttp.NewClient(5*time.Second))

	weather := fw.NewHandler(fw.LoadConfig(), stations, log)
	estimator := ed.NewHandler(ed.LoadConfig(), chat, log)

	payoutCfg := ip.LoadConfig()
	payoutCfg.PrivateKey = opts.privateKey
	payout := ip.NewHandler(payoutCfg, s.ledger.dial, redis, log)

	notifyCfg := nc.LoadConfig()
	notifyCfg.SNSEnabled = true
	notifyCfg.TopicARN = "arn:aws:sns:us-east-1:000000000000:claims"
	notifier := nc.NewHandler(notifyCfg, nil, s.sns, log)

	s.claims = pipeline.New(weather, estimator, dc.NewEngine(dc.LoadConfig()), payout, notifier, nil, log)
	t.Cleanup(s.claims.Wait)

	s.server = httptest.NewServer(api.NewServer(api.Options{
		Processor: s.claims,
		Estimator: estimator,
		Ready:     map[string]api.ReadinessCheck{"redis": redis.Ping},
		Logger:    log,
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) post(t *testing.T, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func claimBody(policyID string) string {
	return `{"address":"` + farmer + `","policyId":"` + policyID + `","lat":19.07,"lng":72.87}`
}

// ==========================
// Scenarios
// ==========================

func TestE2E_StationReadingDrivesPayout(t *testing.T) {
	s := newStack(t, stackOptions{reply: "80", privateKey: testKey})

	resp, body := s.post(t, "/api/claim_with_ai", claimBody("3"))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(80), body["damagePercent"])
	assert.Equal(t, true, body["payoutIssued"])
	assert.Equal(t, "0xabc123", body["transactionHash"])
	assert.Equal(t, models.WeatherSourceStation, body["weatherSource"])

	require.Len(t, s.chat.prompts, 1)
	assert.Contains(t, s.chat.prompts[0], "140.0 mm")
	assert.Equal(t, []int{80}, s.ledger.payouts)

	s.claims.Wait()
	require.Len(t, s.sns.messages, 1)
	assert.Contains(t, s.sns.messages[0], `"outcome":"payout_issued"`)
	assert.False(t, s.redis.Exists(ip.LockKey(3)), "payout lock must be released")
}

func TestE2E_FallbackWeatherStillAssesses(t *testing.T) {
	s := newStack(t, stackOptions{reply: "80", weatherDown: true, privateKey: testKey})

	resp, body := s.post(t, "/api/claim_with_ai", claimBody("4"))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["payoutIssued"])
	assert.Equal(t, models.WeatherSourceFallback, body["weatherSource"])
	assert.Contains(t, s.chat.prompts[0], models.DefaultFallbackObservation.Description)
}

func TestE2E_LowDamageNoPayout(t *testing.T) {
	s := newStack(t, stackOptions{reply: "10", privateKey: testKey})

	resp, body := s.post(t, "/api/claim_with_ai", claimBody("5"))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["damagePercent"])
	assert.Equal(t, false, body["payoutIssued"])
	assert.NotContains(t, body, "transactionHash")
	assert.Zero(t, s.ledger.dials)
}

func TestE2E_MissingKeyFailsClosed(t *testing.T) {
	s := newStack(t, stackOptions{reply: "80"})

	resp, body := s.post(t, "/api/claim_with_ai", claimBody("6"))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "Internal Server Error"}, body)
	assert.Equal(t, string(apperrors.ErrCodeMissingCredential), resp.Header.Get(api.ErrorCodeHeader))
	assert.Zero(t, s.ledger.dials)
}

func TestE2E_SecondClaimOnPaidPolicyIsRejected(t *testing.T) {
	s := newStack(t, stackOptions{reply: "80", privateKey: testKey})

	first, _ := s.post(t, "/api/claim_with_ai", claimBody("8"))
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, _ := s.post(t, "/api/claim_with_ai", claimBody("8"))
	assert.Equal(t, http.StatusInternalServerError, second.StatusCode)
	assert.Equal(t, string(apperrors.ErrCodeAlreadyClaimed), second.Header.Get(api.ErrorCodeHeader))
	assert.Equal(t, []int{80}, s.ledger.payouts)
}

func TestE2E_HeldLockRejectsPayout(t *testing.T) {
	s := newStack(t, stackOptions{reply: "80", privateKey: testKey})
	require.NoError(t, s.redis.Set(ip.LockKey(9), "other-replica"))

	resp, _ := s.post(t, "/api/claim_with_ai", claimBody("9"))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, string(apperrors.ErrCodePayoutInProgress), resp.Header.Get(api.ErrorCodeHeader))
	assert.Empty(t, s.ledger.payouts)
}

func TestE2E_EstimateEndpoint(t *testing.T) {
	s := newStack(t, stackOptions{reply: " 42 "})

	resp, body := s.post(t, "/api/estimate_damage", `{"data":"hailstorm flattened half the field"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", body["res"])
	assert.Contains(t, s.chat.prompts[0], "hailstorm flattened half the field")
}

func TestE2E_Ready(t *testing.T) {
	s := newStack(t, stackOptions{})

	resp, err := http.Get(s.server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"redis": "ok"}, body["checks"])
}

// TestE2E_ZeebeBroker needs a running broker; set ZEEBE_ADDRESS to enable it.
func TestE2E_ZeebeBroker(t *testing.T) {
	address := os.Getenv("ZEEBE_ADDRESS")
	if address == "" {
		t.Skip("ZEEBE_ADDRESS not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := camunda.NewClient(ctx, address, logger.NewTestLogger(t))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.HealthCheck(ctx))

	workers := camunda.NewRegistry(client.GetClient(), logger.NewTestLogger(t))
	decider := dc.NewHandler(dc.LoadConfig(), logger.NewTestLogger(t))
	workers.Start(dc.TaskType, config.WorkerConfig{Enabled: true, MaxJobsActive: 1, Timeout: 5000}, decider.Handle)
	assert.Equal(t, []string{dc.TaskType}, workers.TaskTypes())
	workers.Stop()
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkHandler_DecideClaim(b *testing.B) {
	engine := dc.NewEngine(dc.LoadConfig())
	for i := 0; i < b.N; i++ {
		engine.Decide(models.DamageAssessment{Percent: i % 101})
	}
}

func BenchmarkHandler_ParseDamagePercent(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ed.ParseDamagePercent(" 73\n")
	}
}
