package sparql

// kind identifies a lexical token category. Named tokenXxx like the
// teacher's rdf/scanner.go tokenType, widened to the SPARQL 1.1
// grammar's terminal set.
type kind int

const (
	tokenIllegal kind = iota
	tokenEOF

	tokenIRIRef     // <...>
	tokenPNameLN    // prefix:local
	tokenPNameNS    // prefix:
	tokenBlankNode  // _:label
	tokenVar        // ?x or $x
	tokenString     // quoted string, any of the four SPARQL string forms
	tokenLangTag    // @en, @en-US
	tokenInteger
	tokenDecimal
	tokenDouble
	tokenKeyword // case-insensitive keyword, e.g. SELECT, FILTER, a
	tokenIdent   // bare identifier that wasn't recognized as a keyword

	// Punctuation
	tokenLBrace
	tokenRBrace
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
	tokenComma
	tokenSemicolon
	tokenPipe      // |
	tokenPipePipe  // ||
	tokenAmpAmp    // &&
	tokenSlash     // /
	tokenCaret     // ^
	tokenCaretCaret // ^^
	tokenBang      // !
	tokenBangEqual // !=
	tokenEqual
	tokenLess
	tokenLessEq // <=, emitted by scanIRIRefOrLess
	tokenGreater
	tokenGreaterEq
	tokenPlus
	tokenMinus
	tokenStar
	tokenAt
	tokenQuestionMark
)

// token is one lexical unit with its raw text and source position.
type token struct {
	Kind kind
	Text string // decoded text (escapes resolved for strings)
	Raw  string // original source slice, for keyword case-folding etc.

	// Offset/Line/Col mark the token's first byte (spec.md §4.7
	// "Reports syntactic errors with byte offset, line, and column").
	Offset int
	Line   int
	Col    int
}

var keywords = map[string]bool{
	"BASE": true, "PREFIX": true, "SELECT": true, "CONSTRUCT": true,
	"DESCRIBE": true, "ASK": true, "DISTINCT": true, "REDUCED": true,
	"FROM": true, "NAMED": true, "WHERE": true, "GROUP": true, "BY": true,
	"HAVING": true, "ORDER": true, "ASC": true, "DESC": true, "LIMIT": true,
	"OFFSET": true, "VALUES": true, "OPTIONAL": true, "GRAPH": true,
	"UNION": true, "FILTER": true, "MINUS": true, "BIND": true, "AS": true,
	"SERVICE": true, "SILENT": true, "BOUND": true, "EXISTS": true, "NOT": true,
	"IN": true, "COALESCE": true, "IF": true, "TRUE": true, "FALSE": true,
	"UNDEF": true, "A": true,
	"INSERT": true, "DELETE": true, "DATA": true, "LOAD": true, "CLEAR": true,
	"CREATE": true, "DROP": true, "ADD": true, "MOVE": true, "COPY": true,
	"TO": true, "INTO": true, "DEFAULT": true, "ALL": true, "USING": true, "WITH": true,
	"COUNT": true, "SUM": true, "MIN": true, "MAX": true, "AVG": true,
	"SAMPLE": true, "GROUP_CONCAT": true, "SEPARATOR": true,
}
