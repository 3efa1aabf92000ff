package journal

import (
	"errors"
	"fmt"
	"time"

	"trade-journal-go/internal/models"
	"trade-journal-go/internal/timeparse"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrNotAllowed        = errors.New("operation not allowed for this user")
	ErrNoteExists        = errors.New("trade already has a note")
	ErrStrategyNameTaken = errors.New("strategy name already exists for this user")
	ErrNotACoach         = errors.New("selected user is not a coach")
	ErrAlreadyCoached    = errors.New("student already has a coach")
	ErrRequestPending    = errors.New("a coach request is already pending")
)

// Service implements the journal operations: trade and strategy CRUD,
// coach pairing and the delegate checks that gate a coach's read access.
// Every operation takes explicit owner/viewer identifiers; there is no
// ambient current-user state.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	parser   *timeparse.Parser
	validate *validator.Validate
}

// NewService creates a journal service.
func NewService(db *gorm.DB, log *zap.Logger, parser *timeparse.Parser) *Service {
	return &Service{
		db:       db,
		log:      log,
		parser:   parser,
		validate: validator.New(),
	}
}

// TradeInput is the single-entry form of a trade. Prices, quantity and
// datetimes arrive as text and are parsed with the same decimal and
// temporal rules the CSV importer uses.
type TradeInput struct {
	StrategyID    *uint  `json:"strategy_id"`
	Symbol        string `json:"symbol" validate:"required,max=50"`
	TradeType     string `json:"trade_type" validate:"required,oneof=LONG SHORT"`
	EntryDateTime string `json:"entry_datetime"`
	ExitDateTime  string `json:"exit_datetime"`
	EntryPrice    string `json:"entry_price"`
	ExitPrice     string `json:"exit_price"`
	Quantity      string `json:"quantity" validate:"required"`
	Commission    string `json:"commission"`
	Note          string `json:"note"`
}

// CreateTrade validates and persists a manually entered trade for owner.
// Unlike the bulk importer, parse failures here are returned to the caller.
func (s *Service) CreateTrade(ownerID uint, in TradeInput) (*models.Trade, error) {
	trade, err := s.tradeFromInput(ownerID, in)
	if err != nil {
		return nil, err
	}

	if err := s.db.Create(trade).Error; err != nil {
		return nil, fmt.Errorf("failed to save trade: %w", err)
	}
	s.log.Info("Trade created",
		zap.Uint("owner_id", ownerID),
		zap.Uint("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol))
	return trade, nil
}

// UpdateTrade replaces the editable fields of one of the owner's trades,
// rebuilding ProfitLoss and Duration from the new values. The import
// fingerprint and the note are untouched; notes change only through
// UpdateTradeNote.
func (s *Service) UpdateTrade(ownerID, tradeID uint, in TradeInput) (*models.Trade, error) {
	existing, err := s.GetTrade(ownerID, tradeID)
	if err != nil {
		return nil, err
	}

	trade, err := s.tradeFromInput(ownerID, in)
	if err != nil {
		return nil, err
	}
	trade.Model = existing.Model
	trade.ImportHash = existing.ImportHash
	trade.Note = existing.Note

	if err := s.db.Save(trade).Error; err != nil {
		return nil, fmt.Errorf("failed to update trade: %w", err)
	}
	s.log.Info("Trade updated",
		zap.Uint("owner_id", ownerID),
		zap.Uint("trade_id", trade.ID))
	return trade, nil
}

// tradeFromInput validates and parses a trade form into a ledger entry.
func (s *Service) tradeFromInput(ownerID uint, in TradeInput) (*models.Trade, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid trade input: %w", err)
	}

	dir, _ := ParseDirection(in.TradeType)

	var entry, exit *time.Time
	if in.EntryDateTime != "" {
		t, ok := s.parser.Parse(in.EntryDateTime)
		if !ok {
			return nil, fmt.Errorf("unparseable entry datetime %q", in.EntryDateTime)
		}
		entry = &t
	}
	if in.ExitDateTime != "" {
		t, ok := s.parser.Parse(in.ExitDateTime)
		if !ok {
			return nil, fmt.Errorf("unparseable exit datetime %q", in.ExitDateTime)
		}
		exit = &t
	}

	entryPrice, err := parseDecimal(in.EntryPrice, "0")
	if err != nil {
		return nil, fmt.Errorf("invalid entry price: %w", err)
	}
	exitPrice, err := parseDecimal(in.ExitPrice, "0")
	if err != nil {
		return nil, fmt.Errorf("invalid exit price: %w", err)
	}
	quantity, err := parseDecimal(in.Quantity, "")
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %w", err)
	}
	commission, err := parseDecimal(in.Commission, "0")
	if err != nil {
		return nil, fmt.Errorf("invalid commission: %w", err)
	}

	if in.StrategyID != nil {
		if _, err := s.ownedStrategy(ownerID, *in.StrategyID); err != nil {
			return nil, err
		}
	}

	return NewTrade(TradeParams{
		OwnerID:    ownerID,
		StrategyID: in.StrategyID,
		Symbol:     in.Symbol,
		Direction:  dir,
		Entry:      entry,
		Exit:       exit,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   quantity,
		Commission: commission,
		Note:       in.Note,
	})
}

// AssignTradeStrategy moves a trade under another of the owner's
// strategies, or detaches it when strategyID is nil.
func (s *Service) AssignTradeStrategy(ownerID, tradeID uint, strategyID *uint) (*models.Trade, error) {
	trade, err := s.GetTrade(ownerID, tradeID)
	if err != nil {
		return nil, err
	}
	if strategyID != nil {
		if _, err := s.ownedStrategy(ownerID, *strategyID); err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(trade).Update("strategy_id", strategyID).Error; err != nil {
		return nil, fmt.Errorf("failed to reassign trade: %w", err)
	}
	trade.StrategyID = strategyID
	return trade, nil
}

// ListTrades returns the owner's trades, most recent entry first,
// optionally bounded by an inclusive entry-date range.
func (s *Service) ListTrades(ownerID uint, start, end *time.Time) ([]models.Trade, error) {
	q := s.db.Where("user_id = ?", ownerID).Order("entry_date_time desc")
	if start != nil {
		q = q.Where("entry_date_time >= ?", dayStart(*start))
	}
	if end != nil {
		q = q.Where("entry_date_time < ?", dayStart(*end).AddDate(0, 0, 1))
	}
	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// GetTrade fetches one of the owner's trades.
func (s *Service) GetTrade(ownerID, tradeID uint) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.Where("id = ? AND user_id = ?", tradeID, ownerID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// UpdateTradeNote sets the note on a trade. A trade keeps at most one
// note; a second write is rejected.
func (s *Service) UpdateTradeNote(ownerID, tradeID uint, note string) error {
	trade, err := s.GetTrade(ownerID, tradeID)
	if err != nil {
		return err
	}
	if trade.Note != "" {
		return ErrNoteExists
	}
	return s.db.Model(trade).Update("note", note).Error
}

// DeleteTrade removes a trade and its screenshot attachments.
func (s *Service) DeleteTrade(ownerID, tradeID uint) error {
	trade, err := s.GetTrade(ownerID, tradeID)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trade_id = ?", trade.ID).Delete(&models.Screenshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("trade_id = ?", trade.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(trade).Error
	})
}

// AttachScreenshot links an uploaded image URL to one of the owner's trades.
func (s *Service) AttachScreenshot(ownerID, tradeID uint, url string) (*models.Screenshot, error) {
	trade, err := s.GetTrade(ownerID, tradeID)
	if err != nil {
		return nil, err
	}
	shot := &models.Screenshot{TradeID: &trade.ID, URL: url}
	if err := s.db.Create(shot).Error; err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}
	return shot, nil
}

// CreateStrategy creates a strategy; names are unique per owner.
func (s *Service) CreateStrategy(ownerID uint, name, description string) (*models.Strategy, error) {
	strategy := &models.Strategy{UserID: ownerID, Name: name, Description: description}
	err := s.db.Create(strategy).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrStrategyNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	return strategy, nil
}

// UpdateStrategy renames or redescribes one of the owner's strategies.
// The per-owner name uniqueness still applies.
func (s *Service) UpdateStrategy(ownerID, strategyID uint, name, description string) (*models.Strategy, error) {
	strategy, err := s.ownedStrategy(ownerID, strategyID)
	if err != nil {
		return nil, err
	}
	strategy.Name = name
	strategy.Description = description

	err = s.db.Save(strategy).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrStrategyNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update strategy: %w", err)
	}
	return strategy, nil
}

// ListStrategies returns the owner's strategies ordered by name.
func (s *Service) ListStrategies(ownerID uint) ([]models.Strategy, error) {
	var strategies []models.Strategy
	err := s.db.Where("user_id = ?", ownerID).Order("name").Find(&strategies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return strategies, nil
}

// DeleteStrategy removes a strategy and detaches (not deletes) its trades.
func (s *Service) DeleteStrategy(ownerID, strategyID uint) error {
	strategy, err := s.ownedStrategy(ownerID, strategyID)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Trade{}).
			Where("strategy_id = ?", strategy.ID).
			Update("strategy_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("strategy_id = ?", strategy.ID).Delete(&models.Screenshot{}).Error; err != nil {
			return err
		}
		return tx.Delete(strategy).Error
	})
}

// GetStrategy fetches a strategy, enforcing that it belongs to ownerID.
func (s *Service) GetStrategy(ownerID, strategyID uint) (*models.Strategy, error) {
	return s.ownedStrategy(ownerID, strategyID)
}

// ownedStrategy fetches a strategy and enforces that it belongs to ownerID.
func (s *Service) ownedStrategy(ownerID, strategyID uint) (*models.Strategy, error) {
	var strategy models.Strategy
	err := s.db.Where("id = ? AND user_id = ?", strategyID, ownerID).First(&strategy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &strategy, nil
}

// RequestCoach files a pairing request from a student to a coach.
func (s *Service) RequestCoach(studentID, coachID uint) (*models.CoachRequest, error) {
	var student models.User
	if err := s.db.First(&student, studentID).Error; err != nil {
		return nil, ErrNotFound
	}
	if student.CoachID != nil {
		return nil, ErrAlreadyCoached
	}

	var coach models.User
	if err := s.db.First(&coach, coachID).Error; err != nil {
		return nil, ErrNotFound
	}
	if !coach.IsCoach {
		return nil, ErrNotACoach
	}

	var pending int64
	s.db.Model(&models.CoachRequest{}).
		Where("student_id = ? AND accepted IS NULL", studentID).
		Count(&pending)
	if pending > 0 {
		return nil, ErrRequestPending
	}

	req := &models.CoachRequest{StudentID: studentID, CoachID: coachID}
	if err := s.db.Create(req).Error; err != nil {
		return nil, fmt.Errorf("failed to save coach request: %w", err)
	}
	return req, nil
}

// RespondCoachRequest lets a coach accept or refuse a pending request.
// Accepting links the student to the coach.
func (s *Service) RespondCoachRequest(coachID, requestID uint, accept bool) error {
	var req models.CoachRequest
	err := s.db.Where("id = ? AND coach_id = ? AND accepted IS NULL", requestID, coachID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&req).Update("accepted", accept).Error; err != nil {
			return err
		}
		if !accept {
			return nil
		}
		return tx.Model(&models.User{}).
			Where("id = ?", req.StudentID).
			Update("coach_id", req.CoachID).Error
	})
}

// CanViewStudent reports whether viewerID holds delegate (coach) access
// to studentID's journal. A user always has access to their own journal.
func (s *Service) CanViewStudent(viewerID, studentID uint) bool {
	if viewerID == studentID {
		return true
	}
	var student models.User
	if err := s.db.First(&student, studentID).Error; err != nil {
		return false
	}
	return student.CoachID != nil && *student.CoachID == viewerID
}

// ListStudents returns the students paired with a coach.
func (s *Service) ListStudents(coachID uint) ([]models.User, error) {
	var students []models.User
	err := s.db.Where("coach_id = ?", coachID).Order("username").Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

// AddComment records a coach's comment on a student's trade. Only the
// student's paired coach may comment.
func (s *Service) AddComment(coachID, tradeID uint, content string) (*models.Comment, error) {
	var trade models.Trade
	err := s.db.First(&trade, tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !s.CanViewStudent(coachID, trade.UserID) || coachID == trade.UserID {
		return nil, ErrNotAllowed
	}

	comment := &models.Comment{TradeID: trade.ID, CoachID: coachID, Content: content}
	if err := s.db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}
	return comment, nil
}

// parseDecimal parses an exact decimal from text, substituting def when
// the value is blank. An empty def makes the value required.
func parseDecimal(s, def string) (decimal.Decimal, error) {
	if s == "" {
		if def == "" {
			return decimal.Zero, errors.New("value is required")
		}
		s = def
	}
	return decimal.NewFromString(s)
}

// dayStart truncates an instant to midnight in its own location.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
