// Package demo holds a small game model (Point, Player, Board) built from
// dirty tracking cells and a calculator exposing remote methods. The serve,
// call and watch commands and the tests of the sync layers use it.
package demo
