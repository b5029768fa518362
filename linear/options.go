package linear

// Option is a function that configures PolynomialRegression
type Option func(*PolynomialRegression)

// WithDegree sets the polynomial degree (default 3)
func WithDegree(degree int) Option {
	return func(pr *PolynomialRegression) {
		pr.degree = degree
	}
}

// WithParallelThreshold sets the row count above which the design matrix
// is built in parallel
func WithParallelThreshold(rows int) Option {
	return func(pr *PolynomialRegression) {
		pr.parallelThreshold = rows
	}
}
