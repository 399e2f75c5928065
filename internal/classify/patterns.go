package classify

import "github.com/openledger/banksync/internal/banking/domain"

const (
	providerConfidence = 0.85
	patternConfidence  = 0.75
	// heuristicConfidence marks tentative amount-based guesses.
	heuristicConfidence = 0.3
	defaultConfidence   = 0.1

	// incomeThreshold is the amount above which a transaction is tentatively
	// treated as income.
	incomeThreshold = 5000.0
	// feeFloor bounds the small-negative window tentatively treated as a fee.
	feeFloor = -5.0
)

var (
	pairIncomeSalary    = domain.CategoryPair{Main: "income", Sub: "salary"}
	pairIncomeInterest  = domain.CategoryPair{Main: "income", Sub: "interest"}
	pairIncomeOther     = domain.CategoryPair{Main: "income", Sub: "other"}
	pairGroceries       = domain.CategoryPair{Main: "food", Sub: "groceries"}
	pairEatingOut       = domain.CategoryPair{Main: "food", Sub: "eating_out"}
	pairStreaming       = domain.CategoryPair{Main: "entertainment", Sub: "streaming"}
	pairSubscriptions   = domain.CategoryPair{Main: "entertainment", Sub: "subscriptions"}
	pairTaxi            = domain.CategoryPair{Main: "transport", Sub: "taxi"}
	pairFuel            = domain.CategoryPair{Main: "transport", Sub: "fuel"}
	pairPublicTransport = domain.CategoryPair{Main: "transport", Sub: "public_transport"}
	pairOnlineShopping  = domain.CategoryPair{Main: "shopping", Sub: "online"}
	pairHome            = domain.CategoryPair{Main: "home", Sub: "furnishings"}
	pairRent            = domain.CategoryPair{Main: "home", Sub: "rent"}
	pairUtilities       = domain.CategoryPair{Main: "home", Sub: "utilities"}
	pairPharmacy        = domain.CategoryPair{Main: "health", Sub: "pharmacy"}
	pairInsurance       = domain.CategoryPair{Main: "insurance", Sub: "general"}
	pairBankFees        = domain.CategoryPair{Main: "fees", Sub: "bank_fees"}
	pairCashATM         = domain.CategoryPair{Main: "cash", Sub: "atm"}
)

// providerCategoryMap maps the aggregator's PFM category labels onto taxonomy
// pairs. Labels are matched lowercase.
var providerCategoryMap = map[string]domain.CategoryPair{
	"food-and-drink":   pairEatingOut,
	"restaurants":      pairEatingOut,
	"groceries":        pairGroceries,
	"transport":        pairPublicTransport,
	"taxi":             pairTaxi,
	"fuel":             pairFuel,
	"shopping":         pairOnlineShopping,
	"entertainment":    pairSubscriptions,
	"rent":             pairRent,
	"utilities":        pairUtilities,
	"health":           pairPharmacy,
	"insurance":        pairInsurance,
	"income":           pairIncomeOther,
	"salary":           pairIncomeSalary,
	"bank-fees":        pairBankFees,
	"cash-withdrawals": pairCashATM,
}

type patternEntry struct {
	substrings []string
	category   domain.CategoryPair
	confidence float64
}

// merchantPatterns are tried in declared order against the merchant name;
// the first containing substring wins.
var merchantPatterns = []patternEntry{
	{[]string{"netflix", "spotify", "hbo", "disney+"}, pairStreaming, 0.9},
	{[]string{"uber", "bolt", "free now", "lyft"}, pairTaxi, 0.85},
	{[]string{"lidl", "aldi", "tesco", "carrefour", "biedronka", "zabka"}, pairGroceries, 0.85},
	{[]string{"mcdonald", "kfc", "burger king", "subway", "starbucks"}, pairEatingOut, 0.85},
	{[]string{"shell", "orlen", "circle k", "bp station"}, pairFuel, 0.8},
	{[]string{"amazon", "allegro", "ebay", "zalando"}, pairOnlineShopping, 0.8},
	{[]string{"ikea", "jysk", "leroy merlin"}, pairHome, 0.8},
	{[]string{"pharmacy", "apteka", "boots", "rossmann"}, pairPharmacy, patternConfidence},
}

// descriptionPatterns have the same shape, applied to the display and
// original description text.
var descriptionPatterns = []patternEntry{
	{[]string{"salary", "payroll", "wages", "wynagrodzenie"}, pairIncomeSalary, 0.8},
	{[]string{"rent payment", "czynsz"}, pairRent, patternConfidence},
	{[]string{"interest", "odsetki"}, pairIncomeInterest, patternConfidence},
	{[]string{"atm", "cash withdrawal", "wyplata z bankomatu"}, pairCashATM, patternConfidence},
	{[]string{"insurance", "ubezpieczenie"}, pairInsurance, patternConfidence},
	{[]string{"subscription"}, pairSubscriptions, 0.7},
	{[]string{"account fee", "card fee", "commission", "oplata"}, pairBankFees, 0.7},
	{[]string{"electricity", "gas bill", "water bill"}, pairUtilities, patternConfidence},
}
