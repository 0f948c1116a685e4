package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// TrendPoint holds the totals of one month of the trend series.
type TrendPoint struct {
	Period  Period
	Income  Money
	Expense Money
}

// ChartData is the aggregate view of a single month.
type ChartData struct {
	Period            Period
	TotalIncome       Money
	TotalExpense      Money
	IncomeByCategory  []CategoryAmount
	ExpenseByCategory []CategoryAmount
	Trend             []TrendPoint
}
