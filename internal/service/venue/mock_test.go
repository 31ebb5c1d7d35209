package venue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type venueRepoMock struct {
	mock.Mock
	repository.VenueRepository
}

func (m *venueRepoMock) Get(ctx context.Context, id int64) (*domain.Venue, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*domain.Venue)
	return v, args.Error(1)
}

func (m *venueRepoMock) Approve(ctx context.Context, id int64, at time.Time) (*domain.Venue, error) {
	args := m.Called(ctx, id, at)
	v, _ := args.Get(0).(*domain.Venue)
	return v, args.Error(1)
}

type txStub struct{ venues *venueRepoMock }

func (t *txStub) Venues() repository.VenueRepository     { return t.venues }
func (t *txStub) Bookings() repository.BookingRepository { return nil }
func (t *txStub) Users() repository.UserRepository       { return nil }

type runnerStub struct{ tx repository.Tx }

func (r *runnerStub) Do(ctx context.Context, fn uow.TxFunc) error {
	return fn(ctx, r.tx, func(uow.AfterCommit) {})
}

func (r *runnerStub) Read(ctx context.Context, fn uow.ReadFunc) error {
	return fn(ctx, r.tx)
}

func newMockService(venues *venueRepoMock) *Service {
	clock := func() time.Time { return now }
	return New(&runnerStub{tx: &txStub{venues: venues}}, policy.NewGuard(nil, clock), nil, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)), clock)
}

func TestApprove_FollowUpReadFailure(t *testing.T) {
	tests := []struct {
		name   string
		getErr error
		want   error
	}{
		{"storage down", fmt.Errorf("%w: %w", repository.ErrUnavailable, context.DeadlineExceeded), domain.ErrServiceUnavailable},
		{"venue missing", repository.ErrNotFound, domain.ErrNotFound},
		{"already approved", nil, domain.ErrAlreadyApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venues := &venueRepoMock{}
			venues.On("Approve", mock.Anything, int64(3), now).Return(nil, repository.ErrNotFound)
			if tt.getErr != nil {
				venues.On("Get", mock.Anything, int64(3)).Return(nil, tt.getErr)
			} else {
				venues.On("Get", mock.Anything, int64(3)).Return(&domain.Venue{ID: 3, ApprovalState: domain.VenueApproved}, nil)
			}

			_, err := newMockService(venues).Approve(context.Background(), ident(1, domain.RoleAdmin), 3)

			assert.ErrorIs(t, err, tt.want)
			if tt.want != domain.ErrNotFound {
				assert.NotErrorIs(t, err, domain.ErrNotFound)
			}
			venues.AssertExpectations(t)
		})
	}
}
