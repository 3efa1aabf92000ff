package journal

import (
	"testing"
	"time"

	"trade-journal-go/internal/models"
	"trade-journal-go/internal/timeparse"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTest creates a service backed by a fresh in-memory database.
func setupTest(t *testing.T) *Service {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Strategy{},
		&models.Trade{},
		&models.Screenshot{},
		&models.Comment{},
		&models.CoachRequest{},
	)
	assert.NoError(t, err)

	return NewService(db, zap.NewNop(), timeparse.New(time.UTC, zap.NewNop()))
}

func createUser(t *testing.T, s *Service, username string, isCoach bool) *models.User {
	u := &models.User{Username: username, IsCoach: isCoach}
	assert.NoError(t, s.db.Create(u).Error)
	return u
}

func TestCreateTrade(t *testing.T) {
	s := setupTest(t)
	owner := createUser(t, s, "alice", false)

	trade, err := s.CreateTrade(owner.ID, TradeInput{
		Symbol:        "aapl",
		TradeType:     "LONG",
		EntryDateTime: "2024-05-10 14:00:00",
		ExitDateTime:  "2024-05-10 16:00:00",
		EntryPrice:    "100",
		ExitPrice:     "105",
		Quantity:      "2",
		Commission:    "1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.True(t, trade.ProfitLoss.Equal(d("9")))
	assert.NotNil(t, trade.Duration)
	assert.Empty(t, trade.ImportHash)
}

func TestCreateTrade_InvalidInput(t *testing.T) {
	s := setupTest(t)
	owner := createUser(t, s, "alice", false)

	// Validator rejects unknown directions before anything is parsed.
	_, err := s.CreateTrade(owner.ID, TradeInput{Symbol: "AAPL", TradeType: "BUY", Quantity: "1"})
	assert.Error(t, err)

	_, err = s.CreateTrade(owner.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "not-a-number"})
	assert.Error(t, err)

	_, err = s.CreateTrade(owner.ID, TradeInput{
		Symbol: "AAPL", TradeType: "LONG", Quantity: "1", EntryDateTime: "yesterday-ish",
	})
	assert.Error(t, err)
}

func TestCreateTrade_ForeignStrategyRejected(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)
	bob := createUser(t, s, "bob", false)

	strategy, err := s.CreateStrategy(bob.ID, "Breakout", "")
	assert.NoError(t, err)

	_, err = s.CreateTrade(alice.ID, TradeInput{
		Symbol: "AAPL", TradeType: "LONG", Quantity: "1", StrategyID: &strategy.ID,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateStrategy_DuplicateName(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)
	bob := createUser(t, s, "bob", false)

	_, err := s.CreateStrategy(alice.ID, "Breakout", "first")
	assert.NoError(t, err)

	_, err = s.CreateStrategy(alice.ID, "Breakout", "second")
	assert.ErrorIs(t, err, ErrStrategyNameTaken)

	// Same name under a different owner is fine.
	_, err = s.CreateStrategy(bob.ID, "Breakout", "")
	assert.NoError(t, err)
}

func TestDeleteStrategy_DetachesTrades(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	strategy, err := s.CreateStrategy(alice.ID, "Breakout", "")
	assert.NoError(t, err)

	trade, err := s.CreateTrade(alice.ID, TradeInput{
		Symbol: "AAPL", TradeType: "LONG", Quantity: "1", StrategyID: &strategy.ID,
	})
	assert.NoError(t, err)

	assert.NoError(t, s.DeleteStrategy(alice.ID, strategy.ID))

	// The trade survives, detached from the deleted strategy.
	kept, err := s.GetTrade(alice.ID, trade.ID)
	assert.NoError(t, err)
	assert.Nil(t, kept.StrategyID)
}

func TestUpdateTrade_RecomputesDerivedFields(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	trade, err := s.CreateTrade(alice.ID, TradeInput{
		Symbol:        "AAPL",
		TradeType:     "LONG",
		EntryDateTime: "2024-05-10 14:00:00",
		ExitDateTime:  "2024-05-10 16:00:00",
		EntryPrice:    "100",
		ExitPrice:     "105",
		Quantity:      "2",
	})
	assert.NoError(t, err)
	assert.NoError(t, s.UpdateTradeNote(alice.ID, trade.ID, "entered late"))

	updated, err := s.UpdateTrade(alice.ID, trade.ID, TradeInput{
		Symbol:        "msft",
		TradeType:     "SHORT",
		EntryDateTime: "2024-05-11 09:00:00",
		ExitDateTime:  "2024-05-11 10:30:00",
		EntryPrice:    "400",
		ExitPrice:     "395",
		Quantity:      "1",
	})
	assert.NoError(t, err)

	// Same row, fully rebuilt derived fields, note untouched.
	assert.Equal(t, trade.ID, updated.ID)
	assert.Equal(t, "MSFT", updated.Symbol)
	assert.True(t, updated.ProfitLoss.Equal(d("5")), "got %s", updated.ProfitLoss)
	assert.Equal(t, 90*time.Minute, *updated.Duration)
	assert.Equal(t, "entered late", updated.Note)

	kept, err := s.GetTrade(alice.ID, trade.ID)
	assert.NoError(t, err)
	assert.Equal(t, "entered late", kept.Note)
	assert.True(t, kept.ProfitLoss.Equal(d("5")))
}

func TestUpdateTrade_Rejections(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)
	bob := createUser(t, s, "bob", false)

	trade, err := s.CreateTrade(alice.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.NoError(t, err)

	// Someone else's trade is invisible.
	_, err = s.UpdateTrade(bob.ID, trade.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.ErrorIs(t, err, ErrNotFound)

	// The update path validates like the create path.
	_, err = s.UpdateTrade(alice.ID, trade.ID, TradeInput{Symbol: "AAPL", TradeType: "BUY", Quantity: "1"})
	assert.Error(t, err)

	_, err = s.UpdateTrade(alice.ID, trade.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "0"})
	assert.Error(t, err)
}

func TestUpdateTrade_PreservesImportHash(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	trade, err := s.CreateTrade(alice.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.NoError(t, err)
	assert.NoError(t, s.db.Model(trade).Update("import_hash", "abc123").Error)

	updated, err := s.UpdateTrade(alice.ID, trade.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "2"})
	assert.NoError(t, err)
	assert.Equal(t, "abc123", updated.ImportHash)
}

func TestUpdateStrategy(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)
	bob := createUser(t, s, "bob", false)

	strategy, err := s.CreateStrategy(alice.ID, "Breakout", "old")
	assert.NoError(t, err)
	taken, err := s.CreateStrategy(alice.ID, "Scalping", "")
	assert.NoError(t, err)

	renamed, err := s.UpdateStrategy(alice.ID, strategy.ID, "Momentum", "new")
	assert.NoError(t, err)
	assert.Equal(t, "Momentum", renamed.Name)
	assert.Equal(t, "new", renamed.Description)

	// Renaming onto an existing name of the same owner conflicts.
	_, err = s.UpdateStrategy(alice.ID, strategy.ID, taken.Name, "")
	assert.ErrorIs(t, err, ErrStrategyNameTaken)

	_, err = s.UpdateStrategy(bob.ID, strategy.ID, "Theft", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignTradeStrategy(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)
	bob := createUser(t, s, "bob", false)

	first, err := s.CreateStrategy(alice.ID, "Breakout", "")
	assert.NoError(t, err)
	second, err := s.CreateStrategy(alice.ID, "Scalping", "")
	assert.NoError(t, err)
	foreign, err := s.CreateStrategy(bob.ID, "Momentum", "")
	assert.NoError(t, err)

	trade, err := s.CreateTrade(alice.ID, TradeInput{
		Symbol: "AAPL", TradeType: "LONG", Quantity: "1", StrategyID: &first.ID,
	})
	assert.NoError(t, err)

	moved, err := s.AssignTradeStrategy(alice.ID, trade.ID, &second.ID)
	assert.NoError(t, err)
	assert.Equal(t, second.ID, *moved.StrategyID)

	// Detach with nil.
	detached, err := s.AssignTradeStrategy(alice.ID, trade.ID, nil)
	assert.NoError(t, err)
	assert.Nil(t, detached.StrategyID)

	kept, err := s.GetTrade(alice.ID, trade.ID)
	assert.NoError(t, err)
	assert.Nil(t, kept.StrategyID)

	// Another owner's strategy is not a valid target.
	_, err = s.AssignTradeStrategy(alice.ID, trade.ID, &foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTradeNote_OnlyOnce(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	trade, err := s.CreateTrade(alice.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.NoError(t, err)

	assert.NoError(t, s.UpdateTradeNote(alice.ID, trade.ID, "entered too late"))
	assert.ErrorIs(t, s.UpdateTradeNote(alice.ID, trade.ID, "second thoughts"), ErrNoteExists)
}

func TestListTrades_DateFilter(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	for _, day := range []string{"2024-05-01", "2024-05-10", "2024-05-20"} {
		_, err := s.CreateTrade(alice.ID, TradeInput{
			Symbol: "AAPL", TradeType: "LONG", Quantity: "1",
			EntryDateTime: day + " 10:00:00",
		})
		assert.NoError(t, err)
	}

	start := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	trades, err := s.ListTrades(alice.ID, &start, &end)
	assert.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, 10, trades[0].EntryDateTime.Day())
}

func TestCoachPairingAndDelegateAccess(t *testing.T) {
	s := setupTest(t)
	student := createUser(t, s, "student", false)
	coach := createUser(t, s, "coach", true)
	stranger := createUser(t, s, "stranger", true)

	// Pairing with a non-coach is refused.
	notCoach := createUser(t, s, "pleb", false)
	_, err := s.RequestCoach(student.ID, notCoach.ID)
	assert.ErrorIs(t, err, ErrNotACoach)

	req, err := s.RequestCoach(student.ID, coach.ID)
	assert.NoError(t, err)

	// Only one pending request at a time.
	_, err = s.RequestCoach(student.ID, coach.ID)
	assert.ErrorIs(t, err, ErrRequestPending)

	// No access until the request is accepted.
	assert.False(t, s.CanViewStudent(coach.ID, student.ID))

	assert.NoError(t, s.RespondCoachRequest(coach.ID, req.ID, true))
	assert.True(t, s.CanViewStudent(coach.ID, student.ID))
	assert.False(t, s.CanViewStudent(stranger.ID, student.ID))

	students, err := s.ListStudents(coach.ID)
	assert.NoError(t, err)
	assert.Len(t, students, 1)
}

func TestAddComment_RequiresPairedCoach(t *testing.T) {
	s := setupTest(t)
	student := createUser(t, s, "student", false)
	coach := createUser(t, s, "coach", true)
	stranger := createUser(t, s, "stranger", true)

	trade, err := s.CreateTrade(student.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.NoError(t, err)

	req, err := s.RequestCoach(student.ID, coach.ID)
	assert.NoError(t, err)
	assert.NoError(t, s.RespondCoachRequest(coach.ID, req.ID, true))

	comment, err := s.AddComment(coach.ID, trade.ID, "nice entry")
	assert.NoError(t, err)
	assert.Equal(t, trade.ID, comment.TradeID)

	_, err = s.AddComment(stranger.ID, trade.ID, "not my student")
	assert.ErrorIs(t, err, ErrNotAllowed)

	// The owner commenting on their own trade goes through the note path,
	// not the coach comment path.
	_, err = s.AddComment(student.ID, trade.ID, "self comment")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestDeleteTrade_CascadesAttachments(t *testing.T) {
	s := setupTest(t)
	alice := createUser(t, s, "alice", false)

	trade, err := s.CreateTrade(alice.ID, TradeInput{Symbol: "AAPL", TradeType: "LONG", Quantity: "1"})
	assert.NoError(t, err)

	_, err = s.AttachScreenshot(alice.ID, trade.ID, "https://blobs.example/shot-1.png")
	assert.NoError(t, err)

	assert.NoError(t, s.DeleteTrade(alice.ID, trade.ID))

	var count int64
	s.db.Model(&models.Screenshot{}).Where("trade_id = ?", trade.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	_, err = s.GetTrade(alice.ID, trade.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
