// SPDX-License-Identifier: MIT
/*
Package pitch implements real-time fundamental frequency estimation for
voice signals:
- Accumulator buffers an arbitrarily chunked sample stream into 50%
  overlapping windows
- Estimator runs YIN (difference function, cumulative mean normalization,
  absolute threshold, parabolic interpolation) over each window
- Events carry pitch, confidence, audio-clock timestamp and latency to a Sink

Thread Safety:
- Both types are single-threaded and lock free
- Buffers and scratch memory are allocated once at construction
- Configuration changes apply at the next window boundary
*/
package pitch
