// Package lucyerr defines Lucy's runtime/compile-time error taxonomy, a
// typed ErrorCode plus a *LucyError carrying a source location, grounded
// on exceptions.py's ErrorCode enum.
package lucyerr

import (
	"fmt"

	"lucy/pkg/token"
)

type ErrorCode string

const (
	LexerError          ErrorCode = "LEXER_ERROR"
	UnexpectedToken     ErrorCode = "UNEXPECTED_TOKEN"
	AssigningToRValue   ErrorCode = "ASSIGNING_TO_RVALUE"
	GotoUnexpectedExpr  ErrorCode = "GOTO_UNEXPECTED_EXPRESSION"
	UnexpectedASTNode   ErrorCode = "UNEXPECTED_AST_NODE"
	UnsyntacticBreak    ErrorCode = "UNSYNTACTIC_BREAK"
	UnsyntacticContinue ErrorCode = "UNSYNTACTIC_CONTINUE"
	TypeError           ErrorCode = "TYPE_ERROR"
	CallError           ErrorCode = "CALL_ERROR"
	ExtendFunctionError ErrorCode = "EXTEND_FUNCTION_ERROR"
	NonlocalError       ErrorCode = "NONLOCAL_ERROR"
	ImportError         ErrorCode = "IMPORT_ERROR"
	AssertError         ErrorCode = "ASSERT_ERROR"
)

// LucyError is the error type the VM, the importer, and the stdlib produce;
// callers switch on Code rather than matching message text. The lexer,
// parser, and compiler report their own Error types, whose messages start
// with the matching code name.
type LucyError struct {
	Code    ErrorCode
	Message string
	At      token.Location
}

func New(code ErrorCode, at token.Location, format string, args ...interface{}) *LucyError {
	return &LucyError{Code: code, Message: fmt.Sprintf(format, args...), At: at}
}

func (e *LucyError) Error() string {
	if e.At == (token.Location{}) {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s at %d:%d", e.Code, e.Message, e.At.Line, e.At.Column)
}
