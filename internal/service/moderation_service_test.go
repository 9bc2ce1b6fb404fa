package service

import (
	"context"
	"sync"
	"testing"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
	"insureconnect/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newModerationService(t *testing.T, db *gorm.DB) (*ModerationService, *testutil.PushRecorder) {
	t.Helper()
	notifier, recorder := newTestNotifier(db)
	svc := NewModerationService(
		db,
		repository.NewPostRepository(db),
		repository.NewLedgerRepository(db),
		notifier,
		10,
		adminChecker(db),
	)
	return svc, recorder
}

func TestSubmitChargesAndPends(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newModerationService(t, db)
	ledger := NewLedgerService(repository.NewLedgerRepository(db))
	author := seedUser(t, db, "amira", 100)

	post, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID: author.ID,
		Title:    "Umbrella coverage basics",
		Content:  "What an umbrella policy actually covers.",
		Category: "general",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, 10, post.TokenCost)

	balance, err := ledger.Balance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, balance)

	// An attached image adds one token per started KiB.
	withImage, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID:       author.ID,
		Title:          "Storm damage photos",
		Content:        "Claim documentation walkthrough.",
		Category:       "claims",
		ImageURL:       "https://cdn.example.com/storm.jpg",
		ImageSizeBytes: 2049,
	})
	require.NoError(t, err)
	assert.Equal(t, 13, withImage.TokenCost)

	balance, err = ledger.Balance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, 77, balance)
}

func TestSubmitInsufficientBalanceLeavesNoPost(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newModerationService(t, db)
	author := seedUser(t, db, "broke", 5)

	_, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID: author.ID,
		Title:    "Too expensive",
		Content:  "This should never be stored.",
		Category: "general",
	})
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeInsufficientBalance, appErr.Code)

	// The insert rolled back with the failed debit.
	var posts int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, posts)
}

func TestSubmitDuplicateRequestID(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newModerationService(t, db)
	ledger := NewLedgerService(repository.NewLedgerRepository(db))
	author := seedUser(t, db, "retry", 100)

	in := SubmitPostInput{
		AuthorID:  author.ID,
		Title:     "Submitted once",
		Content:   "A retried submission must not double charge.",
		Category:  "general",
		RequestID: "submit-1",
	}

	_, err := svc.Submit(t.Context(), in)
	require.NoError(t, err)

	_, err = svc.Submit(t.Context(), in)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeInvalidState, appErr.Code)

	balance, err := ledger.Balance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, balance)

	var posts int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Equal(t, int64(1), posts)
}

func TestDecisionSingleWinner(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, recorder := newModerationService(t, db)
	author := seedUser(t, db, "avery", 100)
	admin := seedAdmin(t, db, "mod")

	post, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID: author.ID,
		Title:    "Pending review",
		Content:  "Exactly one decision may land.",
		Category: "general",
	})
	require.NoError(t, err)

	// Non-admins cannot decide.
	_, err = svc.Approve(t.Context(), post.ID, author.ID)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	approved, err := svc.Approve(t.Context(), post.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedByID)
	assert.Equal(t, admin.ID, *approved.ReviewedByID)

	// The decision is terminal in both directions.
	_, err = svc.Approve(t.Context(), post.ID, admin.ID)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeInvalidState, appErr.Code)
	_, err = svc.Reject(t.Context(), post.ID, admin.ID, "changed my mind")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeInvalidState, appErr.Code)

	pushes := recorder.PushedTo(author.ID)
	require.Len(t, pushes, 1)
	assert.Equal(t, models.NotificationPostApproved, pushes[0].Notification.Type)
}

func TestRejectRefundsOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, recorder := newModerationService(t, db)
	ledger := NewLedgerService(repository.NewLedgerRepository(db))
	author := seedUser(t, db, "rejectee", 100)
	admin := seedAdmin(t, db, "mod2")

	post, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID: author.ID,
		Title:    "Will be rejected",
		Content:  "Its cost comes back exactly once.",
		Category: "general",
	})
	require.NoError(t, err)

	_, err = svc.Reject(t.Context(), post.ID, admin.ID, "")
	require.Error(t, err, "a rejection needs a reason")

	rejected, err := svc.Reject(t.Context(), post.ID, admin.ID, "off topic")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, rejected.Status)
	assert.Equal(t, "off topic", rejected.RejectionReason)

	balance, err := ledger.Balance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	var refunds int64
	require.NoError(t, db.Model(&models.TokenTransaction{}).
		Where("type = ?", models.TransactionRefund).Count(&refunds).Error)
	assert.Equal(t, int64(1), refunds)

	pushes := recorder.PushedTo(author.ID)
	require.Len(t, pushes, 1)
	assert.Equal(t, models.NotificationPostRejected, pushes[0].Notification.Type)
}

func TestPendingQueueOldestFirst(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newModerationService(t, db)
	author := seedUser(t, db, "prolific", 100)
	admin := seedAdmin(t, db, "mod3")

	titles := []string{"First in line", "Second in line", "Third in line"}
	for _, title := range titles {
		_, err := svc.Submit(t.Context(), SubmitPostInput{
			AuthorID: author.ID,
			Title:    title,
			Content:  "Queued for review.",
			Category: "general",
		})
		require.NoError(t, err)
	}

	_, err := svc.PendingQueue(t.Context(), author.ID, 10, 0)
	require.Error(t, err, "the queue is admin-only")

	queue, err := svc.PendingQueue(t.Context(), admin.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	for i, title := range titles {
		assert.Equal(t, title, queue[i].Title)
	}
}

func TestRejectConcurrentReviewersRefundOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	singleConn(t, db)
	svc, _ := newModerationService(t, db)
	ledger := NewLedgerService(repository.NewLedgerRepository(db))
	author := seedUser(t, db, "sana", 100)
	first := seedAdmin(t, db, "reviewer-one")
	second := seedAdmin(t, db, "reviewer-two")

	post, err := svc.Submit(t.Context(), SubmitPostInput{
		AuthorID: author.ID,
		Title:    "Duplicate coverage pitfalls",
		Content:  "Stacking two policies rarely pays out twice.",
		Category: "general",
	})
	require.NoError(t, err)

	// Two reviewers reject the same post at once; the conditional status
	// flip lets exactly one through, so the refund applies exactly once.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, reviewer := range []uint{first.ID, second.ID} {
		wg.Add(1)
		go func(reviewerID uint) {
			defer wg.Done()
			_, err := svc.Reject(context.Background(), post.ID, reviewerID, "Off topic")
			errs <- err
		}(reviewer)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeInvalidState, appErr.Code)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	var refunds int64
	require.NoError(t, db.Model(&models.TokenTransaction{}).
		Where("user_id = ? AND type = ?", author.ID, models.TransactionRefund).
		Count(&refunds).Error)
	assert.EqualValues(t, 1, refunds)

	balance, err := ledger.Balance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	ok, err := ledger.VerifyBalance(t.Context(), author.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
