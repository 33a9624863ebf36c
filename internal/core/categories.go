package core

// Category is an entry in the fixed category catalog.
type Category struct {
	ID            string
	Name          string
	Type          TransactionType
	Color         string
	Icon          string
	Subcategories []string
}

var categories = []Category{
	{ID: "salary", Name: "Salary", Type: Income, Color: "#A8D5BA", Icon: "Wallet"},
	{ID: "freelance", Name: "Freelance", Type: Income, Color: "#AED9E0", Icon: "Laptop"},
	{ID: "investments", Name: "Investments", Type: Income, Color: "#C3BFD9", Icon: "TrendingUp"},
	{ID: "business", Name: "Business", Type: Income, Color: "#E7B6C2", Icon: "Building"},
	{ID: "rental", Name: "Rental", Type: Income, Color: "#F4D8A6", Icon: "Home"},
	{ID: "other-income", Name: "Other Income", Type: Income, Color: "#D3C6B8", Icon: "Plus"},

	{ID: "housing", Name: "Housing", Type: Expense, Color: "#E6B8B7", Icon: "Home",
		Subcategories: []string{"Rent", "Mortgage", "Property Tax", "Maintenance"}},
	{ID: "transportation", Name: "Transportation", Type: Expense, Color: "#F2C9AC", Icon: "Car",
		Subcategories: []string{"Fuel", "Public Transport", "Maintenance", "Parking"}},
	{ID: "groceries", Name: "Groceries", Type: Expense, Color: "#D6E8A3", Icon: "Shopping"},
	{ID: "utilities", Name: "Utilities", Type: Expense, Color: "#BEE3E1", Icon: "Zap",
		Subcategories: []string{"Electricity", "Water", "Gas", "Internet", "Phone"}},
	{ID: "entertainment", Name: "Entertainment", Type: Expense, Color: "#D9C4E2", Icon: "Film",
		Subcategories: []string{"Movies", "Games", "Streaming Services"}},
	{ID: "food", Name: "Food", Type: Expense, Color: "#F4B6B6", Icon: "UtensilsCrossed"},
	{ID: "shopping", Name: "Shopping", Type: Expense, Color: "#ECCEDB", Icon: "ShoppingBag",
		Subcategories: []string{"Clothing", "Electronics", "Home Goods"}},
	{ID: "healthcare", Name: "Healthcare", Type: Expense, Color: "#B2DAD3", Icon: "HeartPulse",
		Subcategories: []string{"Medical", "Dental", "Pharmacy", "Insurance"}},
	{ID: "education", Name: "Education", Type: Expense, Color: "#CBCBE0", Icon: "GraduationCap",
		Subcategories: []string{"Tuition", "Books", "Courses"}},
	{ID: "personal", Name: "Personal Care", Type: Expense, Color: "#F3BFD3", Icon: "Smile",
		Subcategories: []string{"Haircut", "Gym", "Beauty"}},
	{ID: "travel", Name: "Travel", Type: Expense, Color: "#BFD9EA", Icon: "Plane"},
	{ID: "insurance", Name: "Insurance", Type: Expense, Color: "#CFCFCF", Icon: "Shield",
		Subcategories: []string{"Life", "Home", "Vehicle"}},
	{ID: "gifts", Name: "Gifts & Donations", Type: Expense, Color: "#F5C6DA", Icon: "Gift"},
	{ID: "bills", Name: "Bills & Fees", Type: Expense, Color: "#F2B8BE", Icon: "Receipt",
		Subcategories: []string{"Bank Fees", "Late Fees", "Service Charges"}},
	{ID: "other-expense", Name: "Other Expenses", Type: Expense, Color: "#D6D9DD", Icon: "MoreHorizontal"},
}

var categoryIndex = func() map[string]int {
	idx := make(map[string]int, len(categories))
	for i, c := range categories {
		idx[c.ID] = i
	}
	return idx
}()

// Categories returns a copy of the catalog in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoriesByType returns the catalog entries usable for t.
func CategoriesByType(t TransactionType) []Category {
	var out []Category
	for _, c := range categories {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// LookupCategory finds a catalog entry by key.
func LookupCategory(id string) (Category, bool) {
	i, ok := categoryIndex[id]
	if !ok {
		return Category{}, false
	}
	return categories[i], true
}
