package payment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"courtbook/internal/gateway"
	"courtbook/internal/models"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *mockRepo) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Venue), args.Error(1)
}

func (m *mockRepo) SetMode(ctx context.Context, id, version int64, mode models.CommitmentMode, state models.PaymentState) error {
	return m.Called(ctx, id, version, mode, state).Error(0)
}

func (m *mockRepo) UpdateStateWithVersion(ctx context.Context, id, version int64, state models.PaymentState) error {
	return m.Called(ctx, id, version, state).Error(0)
}

func (m *mockRepo) CaptureLedger(ctx context.Context, entry *models.LedgerEntry, reservationID, version int64, newCommitted int64, newState models.PaymentState) error {
	return m.Called(ctx, entry, reservationID, version, newCommitted, newState).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, reservationID int64, req gateway.OrderRequest) (*gateway.Order, error) {
	args := m.Called(ctx, reservationID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

func (m *mockGateway) Verify(cb gateway.Callback) error {
	return m.Called(cb).Error(0)
}

var platformDefault = models.CommissionRule{Kind: models.CommissionPercentage, Value: 10}

func newTestMachine(repo *mockRepo, gw *mockGateway) *Machine {
	logger := zerolog.New(io.Discard)
	return NewMachine(repo, gw, nil, platformDefault, &logger)
}

func testVenue() *models.Venue {
	return &models.Venue{
		ID:               1,
		AllowsAdvance:    true,
		AllowsPayAtVenue: true,
		Advance:          &models.AdvancePolicy{Kind: models.AdvancePercentage, Value: 50},
	}
}

func testReservation() *models.Reservation {
	start := time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC)
	return &models.Reservation{
		ID:           5,
		VenueID:      1,
		UserID:       42,
		Date:         time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Duration:     60,
		TotalAmount:  1000,
		PaymentState: models.StateUnpaid,
		Version:      1,
	}
}

func TestAdvanceAmount(t *testing.T) {
	tests := []struct {
		name          string
		policy        *models.AdvancePolicy
		total         int64
		wantAdvance   int64
		wantRemaining int64
	}{
		{"no policy means full", nil, 1000, 1000, 0},
		{"fifty percent", &models.AdvancePolicy{Kind: models.AdvancePercentage, Value: 50}, 1000, 500, 500},
		{"percentage rounds", &models.AdvancePolicy{Kind: models.AdvancePercentage, Value: 33}, 1000, 330, 670},
		{"odd total rounds once", &models.AdvancePolicy{Kind: models.AdvancePercentage, Value: 50}, 999, 500, 499},
		{"flat", &models.AdvancePolicy{Kind: models.AdvanceFlat, Value: 300}, 1000, 300, 700},
		{"flat above total clamped", &models.AdvancePolicy{Kind: models.AdvanceFlat, Value: 5000}, 1000, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venue := &models.Venue{Advance: tt.policy}
			advance, remaining := AdvanceAmount(venue, tt.total)
			assert.Equal(t, tt.wantAdvance, advance)
			assert.Equal(t, tt.wantRemaining, remaining)
			assert.Equal(t, tt.total, advance+remaining, "split must sum back to total")
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StateUnpaid, models.StateProcessing))
	assert.True(t, CanTransition(models.StateProcessing, models.StatePaid))
	assert.True(t, CanTransition(models.StatePartiallyPaid, models.StatePaid))
	assert.True(t, CanTransition(models.StatePayAtVenuePending, models.StatePaid))
	assert.True(t, CanTransition(models.StatePaid, models.StateRefunded))

	assert.False(t, CanTransition(models.StateUnpaid, models.StatePaid), "no capture without a handshake")
	assert.False(t, CanTransition(models.StateFailed, models.StateProcessing), "failed is terminal")
	assert.False(t, CanTransition(models.StateRefunded, models.StatePaid))
}

func TestCommitFullCreatesOrder(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	repo.On("GetReservation", mock.Anything, int64(5)).Return(testReservation(), nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("SetMode", mock.Anything, int64(5), int64(1), models.ModeFull, models.StateProcessing).Return(nil)
	gw.On("CreateOrder", mock.Anything, int64(5), mock.MatchedBy(func(req gateway.OrderRequest) bool {
		return req.Amount == 1000 && !req.IsAdvance
	})).Return(&gateway.Order{OrderID: "order_1", Amount: 1000}, nil)

	order, err := m.Commit(context.Background(), 5, models.ModeFull)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "order_1", order.OrderID)
	repo.AssertExpectations(t)
}

func TestCommitAdvanceOrdersAdvanceAmount(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	repo.On("GetReservation", mock.Anything, int64(5)).Return(testReservation(), nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("SetMode", mock.Anything, int64(5), int64(1), models.ModeAdvance, models.StateProcessing).Return(nil)
	gw.On("CreateOrder", mock.Anything, int64(5), mock.MatchedBy(func(req gateway.OrderRequest) bool {
		return req.Amount == 500 && req.TotalAmount == 1000 && req.IsAdvance
	})).Return(&gateway.Order{OrderID: "order_2", Amount: 500}, nil)

	order, err := m.Commit(context.Background(), 5, models.ModeAdvance)
	require.NoError(t, err)
	assert.Equal(t, int64(500), order.Amount)
}

func TestCommitAdvanceNotOffered(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	venue := testVenue()
	venue.AllowsAdvance = false
	repo.On("GetReservation", mock.Anything, int64(5)).Return(testReservation(), nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(venue, nil)

	_, err := m.Commit(context.Background(), 5, models.ModeAdvance)
	assert.ErrorIs(t, err, ErrModeNotAllowed)
	repo.AssertNotCalled(t, "SetMode", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitGround(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	repo.On("GetReservation", mock.Anything, int64(5)).Return(testReservation(), nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("SetMode", mock.Anything, int64(5), int64(1), models.ModeGround, models.StatePayAtVenuePending).Return(nil)

	order, err := m.Commit(context.Background(), 5, models.ModeGround)
	require.NoError(t, err)
	assert.Nil(t, order, "pay-at-venue never touches the gateway")
	gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitGroundNotOffered(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	venue := testVenue()
	venue.AllowsPayAtVenue = false
	repo.On("GetReservation", mock.Anything, int64(5)).Return(testReservation(), nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(venue, nil)

	_, err := m.Commit(context.Background(), 5, models.ModeGround)
	assert.ErrorIs(t, err, ErrModeNotAllowed)
}

func TestCommitGatewayFailureReleasesSlot(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	processing := testReservation()
	processing.PaymentState = models.StateProcessing
	processing.Version = 2

	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil).Once()
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("SetMode", mock.Anything, int64(5), int64(1), models.ModeFull, models.StateProcessing).Return(nil)
	gw.On("CreateOrder", mock.Anything, int64(5), mock.Anything).Return(nil, errors.New("connection refused"))
	// The failure path reloads and fails the reservation.
	repo.On("GetReservation", mock.Anything, int64(5)).Return(processing, nil).Once()
	repo.On("UpdateStateWithVersion", mock.Anything, int64(5), int64(2), models.StateFailed).Return(nil)

	_, err := m.Commit(context.Background(), 5, models.ModeFull)
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestHandleCallbackFullPayment(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StateProcessing
	r.Mode = models.ModeFull
	r.Version = 2

	cb := gateway.Callback{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig", ReservationID: 5}
	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)
	gw.On("Verify", cb).Return(nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("CaptureLedger", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Gross == 1000 && e.PlatformFee == 100 && e.VenueAmount == 900 && !e.Remainder
	}), int64(5), int64(2), int64(1000), models.StatePaid).Return(nil)

	require.NoError(t, m.HandleCallback(context.Background(), cb))
	repo.AssertExpectations(t)
}

func TestHandleCallbackAdvanceIsPartial(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StateProcessing
	r.Mode = models.ModeAdvance
	r.Version = 2

	cb := gateway.Callback{OrderID: "order_2", PaymentID: "pay_2", Signature: "sig", ReservationID: 5, IsAdvance: true}
	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)
	gw.On("Verify", cb).Return(nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("CaptureLedger", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Gross == 500 && e.PlatformFee == 50 && e.VenueAmount == 450
	}), int64(5), int64(2), int64(500), models.StatePartiallyPaid).Return(nil)

	require.NoError(t, m.HandleCallback(context.Background(), cb))
}

func TestHandleCallbackFrozenVenueOverride(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StateProcessing
	r.Version = 2
	venue := testVenue()
	venue.Commission = &models.CommissionRule{Kind: models.CommissionFlat, Value: 250}

	cb := gateway.Callback{OrderID: "o", PaymentID: "p", Signature: "s", ReservationID: 5}
	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)
	gw.On("Verify", cb).Return(nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(venue, nil)
	repo.On("CaptureLedger", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.CommissionKind == models.CommissionFlat && e.CommissionValue == 250 &&
			e.PlatformFee == 250 && e.VenueAmount == 750
	}), int64(5), int64(2), int64(1000), models.StatePaid).Return(nil)

	require.NoError(t, m.HandleCallback(context.Background(), cb))
}

func TestHandleCallbackVerificationFailure(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StateProcessing
	r.Version = 2

	cb := gateway.Callback{OrderID: "order_1", PaymentID: "pay_1", Signature: "bad", ReservationID: 5}
	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)
	gw.On("Verify", cb).Return(gateway.ErrVerificationFailed)
	repo.On("UpdateStateWithVersion", mock.Anything, int64(5), int64(2), models.StateFailed).Return(nil)

	err := m.HandleCallback(context.Background(), cb)
	assert.ErrorIs(t, err, gateway.ErrVerificationFailed)
	repo.AssertCalled(t, "UpdateStateWithVersion", mock.Anything, int64(5), int64(2), models.StateFailed)
	repo.AssertNotCalled(t, "CaptureLedger", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectRemainder(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StatePartiallyPaid
	r.Mode = models.ModeAdvance
	r.AmountCommitted = 500
	r.Version = 3

	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)
	repo.On("GetVenue", mock.Anything, int64(1)).Return(testVenue(), nil)
	repo.On("CaptureLedger", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Gross == 500 && e.Remainder
	}), int64(5), int64(3), int64(1000), models.StatePaid).Return(nil)

	require.NoError(t, m.CollectRemainder(context.Background(), 5))
}

func TestCollectRemainderNothingDue(t *testing.T) {
	repo := new(mockRepo)
	gw := new(mockGateway)
	m := newTestMachine(repo, gw)

	r := testReservation()
	r.PaymentState = models.StatePartiallyPaid
	r.AmountCommitted = 1000
	repo.On("GetReservation", mock.Anything, int64(5)).Return(r, nil)

	assert.Error(t, m.CollectRemainder(context.Background(), 5))
	repo.AssertNotCalled(t, "CaptureLedger", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
