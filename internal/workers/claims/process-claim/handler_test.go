package processclaim

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessClaim(ctx context.Context, req models.ClaimRequest) *models.ClaimResult {
	args := m.Called(ctx, req)
	return args.Get(0).(*models.ClaimResult)
}

const validVariables = `{
	"address": "0x00000000000000000000000000000000000000aa",
	"policyId": "7",
	"lat": 19.07,
	"lng": 72.87,
	"processStartedBy": "portal"
}`

// recordingGateway captures which job command reached the broker and whether
// its context was still live.
type recordingGateway struct {
	pb.GatewayClient

	mu      sync.Mutex
	calls   []string
	ctxErrs []error
}

func (g *recordingGateway) record(ctx context.Context, call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
}

func (g *recordingGateway) CompleteJob(ctx context.Context, _ *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.record(ctx, "complete")
	return &pb.CompleteJobResponse{}, ctx.Err()
}

func (g *recordingGateway) FailJob(ctx context.Context, _ *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.record(ctx, "fail")
	return &pb.FailJobResponse{}, ctx.Err()
}

func (g *recordingGateway) ThrowError(ctx context.Context, _ *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.record(ctx, "throw")
	return &pb.ThrowErrorResponse{}, ctx.Err()
}

type gatewayJobClient struct {
	gateway pb.GatewayClient
}

func neverRetry(context.Context, error) bool { return false }

func (c gatewayJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, neverRetry)
}

func (c gatewayJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, neverRetry)
}

func (c gatewayJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, neverRetry)
}

func testJob() entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       42,
		Type:      TaskType,
		Retries:   3,
		Variables: validVariables,
	}}
}

func createTestHandler(t *testing.T, processor ClaimProcessor) *Handler {
	return NewHandler(LoadConfig(), processor, logger.NewTestLogger(t))
}

func TestHandler_Execute_Payout(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("ProcessClaim", mock.Anything, models.ClaimRequest{
		FarmerAddress: "0x00000000000000000000000000000000000000aa",
		PolicyID:      7,
		Latitude:      19.07,
		Longitude:     72.87,
	}).Return(&models.ClaimResult{
		ClaimID: "c-1",
		Outcome: models.OutcomePayoutIssued,
		Percent: 80,
		Receipt: &models.PayoutReceipt{TransactionHash: "0xfeed"},
	})

	out, err := createTestHandler(t, processor).Execute(context.Background(), validVariables)

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.PayoutIssued)
	assert.Equal(t, "0xfeed", out.TransactionHash)
	processor.AssertExpectations(t)
}

func TestHandler_Execute_FailedClaimReturnsStageError(t *testing.T) {
	stageErr := apperrors.NewEstimationUnavailableError(assert.AnError).WithStage(models.StageEstimation)
	processor := new(MockProcessor)
	processor.On("ProcessClaim", mock.Anything, mock.Anything).Return(&models.ClaimResult{
		Outcome:     models.OutcomeFailed,
		FailedStage: models.StageEstimation,
		Err:         stageErr,
	})

	out, err := createTestHandler(t, processor).Execute(context.Background(), validVariables)

	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEstimationUnavailable, apperrors.CodeOf(err))

	bpmn := apperrors.ConvertToBPMNError(stageErr)
	assert.Equal(t, 3, bpmn.Retries)
	assert.Equal(t, models.StageEstimation, bpmn.ErrorVariables["failedStage"])
}

func TestParseInput_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		variables string
	}{
		{"not json", `{`},
		{"missing address", `{"policyId":1,"lat":1,"lng":1}`},
		{"bad address", `{"address":"farmer","policyId":1,"lat":1,"lng":1}`},
		{"negative policy", `{"address":"0x00000000000000000000000000000000000000aa","policyId":-1,"lat":1,"lng":1}`},
		{"string latitude", `{"address":"0x00000000000000000000000000000000000000aa","policyId":1,"lat":"1","lng":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInput(tt.variables)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
		})
	}
}

func TestHandle_ReportsOutcomeAfterClaimDeadline(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("ProcessClaim", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(&models.ClaimResult{
			Outcome:     models.OutcomeFailed,
			FailedStage: models.StagePayout,
			Err: apperrors.NewPayoutConfirmationTimeoutError("0xabc", context.DeadlineExceeded).
				WithStage(models.StagePayout),
		})
	gateway := &recordingGateway{}
	h := NewHandler(&Config{Timeout: 50 * time.Millisecond}, processor, logger.NewTestLogger(t))

	h.Handle(gatewayJobClient{gateway: gateway}, testJob())

	assert.Equal(t, []string{"throw"}, gateway.calls)
	assert.Equal(t, []error{nil}, gateway.ctxErrs)
}

func TestHandle_RetryableStageErrorIsNotRetried(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("ProcessClaim", mock.Anything, mock.Anything).Return(&models.ClaimResult{
		Outcome:     models.OutcomeFailed,
		FailedStage: models.StageEstimation,
		Err:         apperrors.NewEstimationUnavailableError(assert.AnError).WithStage(models.StageEstimation),
	})
	gateway := &recordingGateway{}

	createTestHandler(t, processor).Handle(gatewayJobClient{gateway: gateway}, testJob())

	assert.Equal(t, []string{"throw"}, gateway.calls)
}

func TestHandle_CompletesJob(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("ProcessClaim", mock.Anything, mock.Anything).Return(&models.ClaimResult{
		ClaimID: "c-2",
		Outcome: models.OutcomeNoPayout,
		Percent: 10,
		Reason:  "Damage is not sufficient for payout (must be > 20%)",
	})
	gateway := &recordingGateway{}

	createTestHandler(t, processor).Handle(gatewayJobClient{gateway: gateway}, testJob())

	assert.Equal(t, []string{"complete"}, gateway.calls)
	assert.Equal(t, []error{nil}, gateway.ctxErrs)
}
