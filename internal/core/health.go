package core

import (
	"fmt"
	"sort"
	"strings"
)

// HealthReport is the advisor's financial-health assessment. The fallback
// version is fully deterministic: identical snapshots produce identical
// reports.
type HealthReport struct {
	Score     int      `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Concerns  []string `json:"concerns"`
}

// Insight is one advisor recommendation.
type Insight struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Impact      Impact `json:"impact"`
}

// GoalPriority ranks one goal in a prioritized plan.
type GoalPriority struct {
	GoalID string `json:"goal_id"`
	Name   string `json:"name"`
	Rank   int    `json:"rank"`
	Reason string `json:"reason"`
}

// SpendingArea flags one category as a candidate for cuts.
type SpendingArea struct {
	Category    ExpenseCategory `json:"category"`
	AmountCents int64           `json:"amount_cents"`
	Share       float64         `json:"share"`
	Suggestion  string          `json:"suggestion"`
}

// FallbackHealthScore grades a month from its savings rate and
// debt-to-income ratio. Base 50, adjusted per band, clamped to [0,100].
func FallbackHealthScore(savingsRate, debtToIncome float64) int {
	score := 50

	switch {
	case savingsRate >= 0.20:
		score += 15
	case savingsRate >= 0.10:
		score += 5
	case savingsRate < 0:
		score -= 20
	case savingsRate < 0.05:
		score -= 10
	}

	switch {
	case debtToIncome > 0.40:
		score -= 15
	case debtToIncome > 0.25:
		score -= 5
	case debtToIncome < 0.15:
		score += 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// FallbackHealthReport builds the local health assessment for a snapshot.
func FallbackHealthReport(s Snapshot) HealthReport {
	savings := s.SavingsRate()
	dti := s.DebtToIncome()
	report := HealthReport{Score: FallbackHealthScore(savings, dti)}

	switch {
	case report.Score >= 70:
		report.Summary = "Your finances look healthy this month."
	case report.Score >= 40:
		report.Summary = "Your finances are stable but have room to improve."
	default:
		report.Summary = "Your finances need attention this month."
	}

	if savings >= 0.20 {
		report.Strengths = append(report.Strengths, fmt.Sprintf("You are saving %.0f%% of your income.", savings*100))
	}
	if dti < 0.15 && s.DebtBalanceCents == 0 {
		report.Strengths = append(report.Strengths, "You carry no outstanding debt.")
	} else if dti < 0.15 {
		report.Strengths = append(report.Strengths, "Your debt payments are a small share of income.")
	}

	if savings < 0 {
		report.Concerns = append(report.Concerns, "You spent more than you earned this month.")
	} else if savings < 0.05 {
		report.Concerns = append(report.Concerns, "Your savings rate is below 5% of income.")
	}
	if dti > 0.40 {
		report.Concerns = append(report.Concerns, "Debt payments take more than 40% of your income.")
	} else if dti > 0.25 {
		report.Concerns = append(report.Concerns, "Debt payments take more than a quarter of your income.")
	}

	return report
}

// FallbackInsights produces the deterministic local recommendations for a
// snapshot. Rules fire in a fixed order so identical input yields identical
// output.
func FallbackInsights(s Snapshot) []Insight {
	var insights []Insight

	savings := s.SavingsRate()
	switch {
	case savings < 0:
		insights = append(insights, Insight{
			Type:        "spending",
			Description: "Expenses exceeded income this month. Review your largest categories and cut back before adding new commitments.",
			Impact:      ImpactHigh,
		})
	case savings < 0.10:
		insights = append(insights, Insight{
			Type:        "savings",
			Description: "Aim to save at least 10% of your income. Automating a transfer on payday makes this easier to sustain.",
			Impact:      ImpactMedium,
		})
	default:
		insights = append(insights, Insight{
			Type:        "savings",
			Description: "Your savings rate is solid. Consider directing the surplus toward your highest-priority goal.",
			Impact:      ImpactLow,
		})
	}

	if top, ok := s.TopCategory(); ok && s.ExpenseCents > 0 {
		share := float64(top.AmountCents) / float64(s.ExpenseCents)
		if share > 0.40 && top.Category != CategoryHousing {
			insights = append(insights, Insight{
				Type:        "spending",
				Description: fmt.Sprintf("%s accounts for %.0f%% of this month's spending. Check whether that matches your priorities.", categoryLabel(top.Category), share*100),
				Impact:      ImpactMedium,
			})
		}
	}

	if dti := s.DebtToIncome(); dti > 0.25 {
		insights = append(insights, Insight{
			Type:        "debt",
			Description: "Your debt payments are a heavy share of income. Paying down the highest-interest debt first reduces the total cost fastest.",
			Impact:      ImpactHigh,
		})
	} else if s.DebtBalanceCents > 0 {
		insights = append(insights, Insight{
			Type:        "debt",
			Description: "Paying slightly more than the minimum each month shortens your payoff timeline noticeably.",
			Impact:      ImpactLow,
		})
	}

	return insights
}

// categoryKeywords drives the local expense classifier. First match wins;
// unmatched descriptions fall through to "other".
var categoryKeywords = []struct {
	category ExpenseCategory
	words    []string
}{
	{CategoryHousing, []string{"rent", "mortgage", "landlord", "hoa"}},
	{CategoryUtilities, []string{"electric", "water", "gas bill", "internet", "phone", "utility"}},
	{CategoryTransport, []string{"fuel", "gasoline", "bus", "train", "uber", "taxi", "parking", "car"}},
	{CategoryFood, []string{"grocery", "groceries", "restaurant", "coffee", "lunch", "dinner", "supermarket"}},
	{CategoryHealthcare, []string{"doctor", "pharmacy", "dentist", "hospital", "insurance"}},
	{CategorySubscriptions, []string{"netflix", "spotify", "subscription", "membership"}},
	{CategoryEntertainment, []string{"cinema", "movie", "concert", "game", "ticket"}},
	{CategoryDebtPayment, []string{"loan", "credit card", "repayment", "debt"}},
	{CategorySavings, []string{"savings", "deposit", "investment"}},
}

// FallbackCategory classifies an expense description by keyword matching.
func FallbackCategory(description string) ExpenseCategory {
	desc := strings.ToLower(description)
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(desc, word) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// FallbackGoalPriorities orders goals by a fixed policy: incomplete
// emergency funds first, then debt payoff, then everything else by the
// user's own priority and target date. Completed goals sink to the bottom.
func FallbackGoalPriorities(goals []Goal) []GoalPriority {
	ordered := make([]Goal, len(goals))
	copy(ordered, goals)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		ra, rb := goalTypeRank(a.Type), goalTypeRank(b.Type)
		if ra != rb {
			return ra < rb
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.TargetDate.Equal(b.TargetDate) {
			return a.TargetDate.Before(b.TargetDate)
		}
		return a.Name < b.Name
	})

	priorities := make([]GoalPriority, len(ordered))
	for i, g := range ordered {
		priorities[i] = GoalPriority{
			GoalID: g.ID,
			Name:   g.Name,
			Rank:   i + 1,
			Reason: goalPriorityReason(g),
		}
	}
	return priorities
}

func goalTypeRank(t GoalType) int {
	switch t {
	case GoalEmergencyFund:
		return 0
	case GoalDebtPayoff:
		return 1
	default:
		return 2
	}
}

func goalPriorityReason(g Goal) string {
	if g.Completed {
		return "Already completed."
	}
	switch g.Type {
	case GoalEmergencyFund:
		return "An emergency fund protects every other goal from setbacks."
	case GoalDebtPayoff:
		return "Eliminating debt frees up cash flow for the rest of your plan."
	default:
		return "Funded after your safety net and debt obligations."
	}
}

// FallbackSpendingAreas flags categories worth trimming: any non-essential
// category above 15% of the month's spending.
func FallbackSpendingAreas(s Snapshot) []SpendingArea {
	if s.ExpenseCents <= 0 {
		return nil
	}
	var areas []SpendingArea
	for _, ca := range s.ByCategory {
		if essentialCategory(ca.Category) {
			continue
		}
		share := float64(ca.AmountCents) / float64(s.ExpenseCents)
		if share < 0.15 {
			continue
		}
		areas = append(areas, SpendingArea{
			Category:    ca.Category,
			AmountCents: ca.AmountCents,
			Share:       share,
			Suggestion:  fmt.Sprintf("Trimming %s by 20%% would free %s this month.", categoryLabel(ca.Category), FormatCents(ca.AmountCents/5)),
		})
	}
	return areas
}

func essentialCategory(c ExpenseCategory) bool {
	switch c {
	case CategoryHousing, CategoryUtilities, CategoryHealthcare, CategoryDebtPayment:
		return true
	}
	return false
}

// FallbackGoalAdvice suggests a funding plan for one goal given the month's
// surplus: the flat monthly amount needed to reach the target by its date.
func FallbackGoalAdvice(g Goal, s Snapshot) []string {
	if g.Completed {
		return []string{fmt.Sprintf("%s is complete. Redirect its contributions to your next goal.", g.Name)}
	}

	remaining := g.TargetCents - g.CurrentCents
	advice := []string{
		fmt.Sprintf("%s needs %s more to reach its target.", g.Name, FormatCents(remaining)),
	}

	if !g.TargetDate.IsZero() {
		monthsLeft := monthsUntil(s.Month, MonthOf(g.TargetDate))
		if monthsLeft <= 0 {
			advice = append(advice, "The target date has passed. Set a new date or adjust the target.")
		} else {
			perMonth := (remaining + int64(monthsLeft) - 1) / int64(monthsLeft)
			advice = append(advice, fmt.Sprintf("Contributing %s per month reaches the target on schedule.", FormatCents(perMonth)))
			if net := s.NetCents(); net > 0 && perMonth > net {
				advice = append(advice, "That exceeds this month's surplus. Extend the date or trim expenses to close the gap.")
			}
		}
	}

	return advice
}

// monthsUntil counts whole months from one key to another; zero or negative
// when to is not after from.
func monthsUntil(from, to MonthKey) int {
	if !from.Before(to) {
		return 0
	}
	count := 0
	for k := from; k.Before(to); k = k.Next() {
		count++
		if count > 1200 {
			break
		}
	}
	return count
}

func categoryLabel(c ExpenseCategory) string {
	label := strings.ReplaceAll(string(c), "_", " ")
	if label == "" {
		return "other"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
