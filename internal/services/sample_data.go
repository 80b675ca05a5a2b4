package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/google/uuid"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/log"
)

// LoadSampleData seeds a user with three months of generated ledger data so
// the dashboard has something to show on first run. Existing entities with
// the same ids are never touched; everything generated gets a fresh id.
func (s *LedgerService) LoadSampleData(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	first := core.MonthOf(now.AddDate(0, -2, 0))
	keys := []core.MonthKey{first, first.Next(), first.Next().Next()}

	for i, key := range keys {
		month := core.Month{
			ID:        key,
			UserID:    userID,
			Name:      key.DisplayName(),
			Active:    i == len(keys)-1,
			CreatedAt: now,
		}
		if err := s.store.UpsertMonth(ctx, month); err != nil {
			return fmt.Errorf("seed month %s: %w", key, err)
		}
	}

	debt := core.Debt{
		ID:                  uuid.NewString(),
		UserID:              userID,
		Name:                "Car loan",
		PrincipalCents:      1_200_000,
		MinimumPaymentCents: 25_000,
		InterestRate:        6.5,
		Priority:            1,
		MonthlyPayments:     map[core.MonthKey]int64{},
		MonthlyBalances:     map[core.MonthKey]int64{},
		CreatedAt:           now,
	}
	core.RecomputeDebt(&debt)
	if err := s.store.SaveDebt(ctx, debt); err != nil {
		return fmt.Errorf("seed debt: %w", err)
	}

	goals := []core.Goal{
		{
			ID:              uuid.NewString(),
			UserID:          userID,
			Name:            "Emergency fund",
			Type:            core.GoalEmergencyFund,
			TargetCents:     600_000,
			TargetDate:      now.AddDate(1, 0, 0),
			Priority:        1,
			MonthlyProgress: map[core.MonthKey]int64{keys[0]: 50_000, keys[1]: 50_000},
			CreatedAt:       now,
		},
		{
			ID:              uuid.NewString(),
			UserID:          userID,
			Name:            "Pay off car loan",
			Type:            core.GoalDebtPayoff,
			TargetCents:     debt.PrincipalCents,
			TargetDate:      now.AddDate(2, 0, 0),
			Priority:        2,
			DebtID:          debt.ID,
			MonthlyProgress: map[core.MonthKey]int64{},
			CreatedAt:       now,
		},
	}
	for i := range goals {
		core.RecomputeGoal(&goals[i])
		if err := s.store.SaveGoal(ctx, goals[i]); err != nil {
			return fmt.Errorf("seed goal: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(now.UnixNano()))
	for _, key := range keys {
		monthStart := key.Time()

		income := core.Income{
			ID:          uuid.NewString(),
			UserID:      userID,
			Month:       key,
			Source:      strings.TrimSpace(faker.Name()) + " Consulting",
			AmountCents: 350_000 + rng.Int63n(100_000),
			Date:        monthStart.AddDate(0, 0, 1),
			Recurring:   true,
		}
		if err := s.store.SaveIncome(ctx, income); err != nil {
			return fmt.Errorf("seed income: %w", err)
		}

		for _, cat := range []core.ExpenseCategory{
			core.CategoryHousing, core.CategoryFood,
			core.CategoryTransport, core.CategoryEntertainment,
		} {
			expense := core.Expense{
				ID:          uuid.NewString(),
				UserID:      userID,
				Month:       key,
				AmountCents: sampleAmount(rng, cat),
				Category:    cat,
				Date:        monthStart.AddDate(0, 0, 3+rng.Intn(20)),
				Description: faker.Word(),
			}
			if err := s.store.SaveExpense(ctx, expense); err != nil {
				return fmt.Errorf("seed expense: %w", err)
			}

			budget := core.Budget{
				ID:         uuid.NewString(),
				UserID:     userID,
				Month:      key,
				Category:   cat,
				LimitCents: sampleAmount(rng, cat) * 2,
			}
			if err := s.store.SaveBudget(ctx, budget); err != nil {
				return fmt.Errorf("seed budget: %w", err)
			}
		}
	}

	s.logger.InfoContext(ctx, "sample data loaded",
		log.FieldUserID, userID,
		"months", len(keys))
	s.notify(ctx, userID, keys[len(keys)-1], amqp.ReasonSampleData)
	return nil
}

func sampleAmount(rng *rand.Rand, cat core.ExpenseCategory) int64 {
	switch cat {
	case core.CategoryHousing:
		return 120_000 + rng.Int63n(30_000)
	case core.CategoryFood:
		return 40_000 + rng.Int63n(20_000)
	case core.CategoryTransport:
		return 15_000 + rng.Int63n(10_000)
	default:
		return 5_000 + rng.Int63n(15_000)
	}
}
