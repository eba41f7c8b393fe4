// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package status

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Guard runs fn and converts any panic raised by it into a failure of st, so a fault in one
// call never aborts the host process.
//
// If fn returns normally st is left as fn set it. A panic with an error value that wraps a
// *Status keeps that status' code, any other panic is reported as Internal.
func Guard(st *Status, op string, fn func()) {
	exception := exceptions.Try(fn)
	if exception == nil {
		return
	}
	err, ok := exception.(error)
	if !ok {
		err = errors.Errorf("%v", exception)
	}
	var inner *Status
	if errors.As(err, &inner) {
		klog.V(1).Infof("%s: %s", op, inner)
		st.Set(inner.code, "%s: %s", op, inner.message)
		return
	}
	klog.Errorf("%s: recovered from fault: %+v", op, err)
	st.Set(Internal, "%s: %v", op, err)
}

// Throw panics with a copy of a status built from code and the formatted message.
// It is meant for contract violations inside code that runs under Guard.
func Throw(code Code, format string, args ...any) {
	panic(errors.WithStack(Newf(code, format, args...)))
}
