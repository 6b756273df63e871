// Package ir provides the foundational types shared by every stepnav package:
// steps, answers, step results, result selectors and task results.
//
// This package contains type definitions and their serialization only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - AnswerValue is a closed set of variants (Skipped, Bool, Number, Text,
//     Date, Choices, Collection). Consumers switch exhaustively on the
//     concrete type; there is no reflection.
//   - Steps are immutable once declared.
//   - A TaskResult carries results in visitation order, never declaration order.
//   - All JSON tags use snake_case.
package ir
