package domain

// Currency describes an ISO 4217 code accepted at intake.
type Currency struct {
	Code       string
	Name       string
	MinorUnits int
}

var currencies = func() map[string]Currency {
	list := []Currency{
		{"AED", "UAE Dirham", 2},
		{"AUD", "Australian Dollar", 2},
		{"BRL", "Brazilian Real", 2},
		{"CAD", "Canadian Dollar", 2},
		{"CHF", "Swiss Franc", 2},
		{"CNY", "Yuan Renminbi", 2},
		{"CZK", "Czech Koruna", 2},
		{"DKK", "Danish Krone", 2},
		{"EUR", "Euro", 2},
		{"GBP", "Pound Sterling", 2},
		{"HKD", "Hong Kong Dollar", 2},
		{"HUF", "Forint", 2},
		{"IDR", "Rupiah", 2},
		{"ILS", "New Israeli Sheqel", 2},
		{"INR", "Indian Rupee", 2},
		{"JPY", "Yen", 0},
		{"KRW", "Won", 0},
		{"KWD", "Kuwaiti Dinar", 3},
		{"KZT", "Tenge", 2},
		{"MXN", "Mexican Peso", 2},
		{"NOK", "Norwegian Krone", 2},
		{"NZD", "New Zealand Dollar", 2},
		{"PLN", "Zloty", 2},
		{"RUB", "Russian Ruble", 2},
		{"SAR", "Saudi Riyal", 2},
		{"SEK", "Swedish Krona", 2},
		{"SGD", "Singapore Dollar", 2},
		{"THB", "Baht", 2},
		{"TRY", "Turkish Lira", 2},
		{"UAH", "Hryvnia", 2},
		{"USD", "US Dollar", 2},
		{"ZAR", "Rand", 2},
	}
	m := make(map[string]Currency, len(list))
	for _, c := range list {
		m[c.Code] = c
	}
	return m
}()

// LookupCurrency returns the currency for an upper-case ISO code.
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencies[code]
	return c, ok
}
