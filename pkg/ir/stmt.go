package ir

// AssertionKind distinguishes assert/assume/error severities.
type AssertionKind uint8

const (
	AssertAssert AssertionKind = iota
	AssertAssume
	AssertError
)

// CaseItem is one arm of a Case statement.
type CaseItem struct {
	// Values are matched against the case selector; a nil Values slice
	// marks the default arm.
	Values []Expr
	Body   Statement
}

// Statement is the executor's statement sum type.
type Statement interface{ isStatement() }

// StmtAssign assigns Value to Target.
type StmtAssign struct {
	Target SignalRef
	Value  Expr
}

// StmtIf is a conditional; Else may be nil.
type StmtIf struct {
	Cond       Expr
	Then, Else Statement
}

// StmtCase is a multi-way branch on Selector.
type StmtCase struct {
	Selector Expr
	Items    []CaseItem
}

// StmtBlock executes its children in order.
type StmtBlock struct{ Stmts []Statement }

// StmtDelay suspends for DurationFS, then runs Body.
type StmtDelay struct {
	DurationFS uint64
	Body       Statement
}

// StmtForever re-executes Body indefinitely.
type StmtForever struct{ Body Statement }

// StmtWait suspends until Cond becomes true on a re-evaluation triggered by
// a change to one of the signals it reads.
type StmtWait struct {
	Cond Expr
	Body Statement
}

// StmtAssertion evaluates Cond and records a failure if it is false.
type StmtAssertion struct {
	Kind    AssertionKind
	Cond    Expr
	Message string
}

// StmtDisplay formats Args according to Format's printf-shaped tokens.
type StmtDisplay struct {
	Format string
	Args   []Expr
}

// StmtFinish ends the simulation.
type StmtFinish struct{}

// StmtNop does nothing.
type StmtNop struct{}

func (StmtAssign) isStatement()    {}
func (StmtIf) isStatement()        {}
func (StmtCase) isStatement()      {}
func (StmtBlock) isStatement()     {}
func (StmtDelay) isStatement()     {}
func (StmtForever) isStatement()   {}
func (StmtWait) isStatement()      {}
func (StmtAssertion) isStatement() {}
func (StmtDisplay) isStatement()   {}
func (StmtFinish) isStatement()    {}
func (StmtNop) isStatement()       {}
