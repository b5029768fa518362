// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// フィッティングの失敗（収束失敗・自由度不足）は型付きエラーとして表現され、
// 呼び出し側はそれを検査してセンチネル結果に置き換えます。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("tpcfit-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// BoundClipWarning は初期値が境界の外側にあり、境界上に丸められた場合の警告です。
type BoundClipWarning struct {
	Param string
	Value float64
	Bound float64
}

func (w *BoundClipWarning) Error() string {
	return fmt.Sprintf("start value %g for parameter '%s' lies outside its bound; clipped to %g", w.Value, w.Param, w.Bound)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *BoundClipWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("param", w.Param).
		Float64("value", w.Value).
		Float64("bound", w.Bound).
		Str("type", "BoundClipWarning")
}

// NewBoundClipWarning は新しいBoundClipWarningを作成します。
func NewBoundClipWarning(param string, value, bound float64) *BoundClipWarning {
	return &BoundClipWarning{Param: param, Value: value, Bound: bound}
}

// ===========================================================================
//
//	フィッティング失敗型（回復可能）
//
// ===========================================================================

// ConvergenceFailure は最小化が進行できなかった場合のエラーです。
// 特異ヤコビアン、未定義の対数、評価回数・時間予算の枯渇などが該当します。
type ConvergenceFailure struct {
	Op          string
	Reason      string
	Evaluations int
	// Cause は失敗の原因となったエラーです（nil の場合あり）。
	Cause error
}

func (e *ConvergenceFailure) Error() string {
	return fmt.Sprintf("tpcfit: %s: convergence failure after %d evaluations: %s", e.Op, e.Evaluations, e.Reason)
}

// Unwrap は原因エラーを返します。
func (e *ConvergenceFailure) Unwrap() error { return e.Cause }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConvergenceFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Int("evaluations", e.Evaluations).
		Str("type", "ConvergenceFailure")
}

// NewConvergenceFailure は新しいConvergenceFailureを作成し、スタックトレースを付与します。
func NewConvergenceFailure(op, reason string, evaluations int) error {
	return errors.WithStack(&ConvergenceFailure{Op: op, Reason: reason, Evaluations: evaluations})
}

// WrapConvergenceFailure は cause を理由とするConvergenceFailureを作成します。
// errors.Is(err, ErrSingularMatrix) のように原因で判定できます。
func WrapConvergenceFailure(op string, cause error, evaluations int) error {
	return errors.WithStack(&ConvergenceFailure{Op: op, Reason: cause.Error(), Evaluations: evaluations, Cause: cause})
}

// UnderdeterminedFailure は自由パラメータ数が利用可能な観測数以上の場合のエラーです。
type UnderdeterminedFailure struct {
	Op           string
	Free         int
	Observations int
}

func (e *UnderdeterminedFailure) Error() string {
	return fmt.Sprintf("tpcfit: %s: %d free parameters cannot be estimated from %d observations", e.Op, e.Free, e.Observations)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnderdeterminedFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("free", e.Free).
		Int("observations", e.Observations).
		Str("type", "UnderdeterminedFailure")
}

// NewUnderdeterminedFailure は新しいUnderdeterminedFailureを作成し、スタックトレースを付与します。
func NewUnderdeterminedFailure(op string, free, observations int) error {
	return errors.WithStack(&UnderdeterminedFailure{Op: op, Free: free, Observations: observations})
}

// FailureKind names a recoverable fit failure.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureConvergence     FailureKind = "convergence"
	FailureUnderdetermined FailureKind = "underdetermined"
)

// ClassifyFailure reports which recoverable failure err carries.
// FailureNone means err is nil or not recoverable.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var under *UnderdeterminedFailure
	if errors.As(err, &under) {
		return FailureUnderdetermined
	}
	var conv *ConvergenceFailure
	if errors.As(err, &conv) {
		return FailureConvergence
	}
	return FailureNone
}

// IsFitFailure reports whether err is a recoverable fit failure.
func IsFitFailure(err error) bool {
	return ClassifyFailure(err) != FailureNone
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("tpcfit: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("tpcfit: %s: length mismatch. Expected %d, got %d", e.Op, e.Expected, e.Got)
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got})
}

// ValidationError は入力データや設定の検証に失敗した場合のエラーです。
// 入力表の必須列の欠落や不正な行はこのエラーで報告され、実行全体を中断します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tpcfit: validation failed for '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("tpcfit: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("tpcfit: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
