package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

var toFlag = &cli.IntFlag{
	Name:  "to",
	Usage: "result width for zext, sext and narrow",
}

var stampCommand = &cli.Command{
	Name:  "stamp",
	Usage: "Evaluate stamp lattice operations",
	Description: `Stamps use the same text form as graph descriptions, e.g.

   novaopt stamp meet "i32 [0, 10]" "i32 [20, 30]"
   novaopt stamp fold mul "i32 [-3, 3]" "i32 [0, 10]"
   novaopt stamp fold --to 64 sext "i8 [-1, 5]"`,
	Subcommands: []*cli.Command{
		{
			Name:      "meet",
			Usage:     "Least upper bound of two stamps",
			ArgsUsage: "<stamp> <stamp>",
			Action:    latticeAction(stamp.Stamp.Meet),
		},
		{
			Name:      "join",
			Usage:     "Greatest lower bound of two stamps",
			ArgsUsage: "<stamp> <stamp>",
			Action:    latticeAction(stamp.Stamp.Join),
		},
		{
			Name:      "fold",
			Usage:     "Result stamp of an operator applied to input stamps",
			ArgsUsage: "<op> <stamp> [<stamp>]",
			Flags:     []cli.Flag{toFlag},
			Action:    foldAction,
		},
	},
}

func parseStamps(args []string) ([]stamp.Stamp, error) {
	out := make([]stamp.Stamp, len(args))
	for i, a := range args {
		s, err := stamp.Parse(a, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stamp %q: %w", a, err)
		}
		out[i] = s
	}
	return out, nil
}

func latticeAction(op func(stamp.Stamp, stamp.Stamp) stamp.Stamp) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("%s needs two stamps, got %d", c.Command.Name, c.NArg())
		}
		s, err := parseStamps(c.Args().Slice())
		if err != nil {
			return err
		}
		if !s[0].IsCompatible(s[1]) {
			return fmt.Errorf("stamps %s and %s are not compatible", s[0], s[1])
		}
		fmt.Fprintln(c.App.Writer, stamp.Format(op(s[0], s[1])))
		return nil
	}
}

func foldAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("fold needs an operator and its input stamps")
	}
	name := c.Args().First()
	op, ok := arith.ParseOp(name)
	if !ok {
		return fmt.Errorf("unknown operator %q", name)
	}
	in, err := parseStamps(c.Args().Tail())
	if err != nil {
		return err
	}
	want := 2
	if op.Class() == arith.ClassUnary || op.Class() == arith.ClassConvert {
		want = 1
	}
	if len(in) != want {
		return fmt.Errorf("%s takes %d input stamps, got %d", op, want, len(in))
	}
	if want == 2 && !compatible(op, in[0], in[1]) {
		return fmt.Errorf("stamps %s and %s are not compatible", in[0], in[1])
	}

	var fold func() stamp.Stamp
	switch op.Class() {
	case arith.ClassUnary:
		fold = func() stamp.Stamp { return arith.FoldUnary(op, in[0]) }
	case arith.ClassBinary:
		fold = func() stamp.Stamp { return arith.FoldBinary(op, in[0], in[1]) }
	case arith.ClassShift:
		fold = func() stamp.Stamp { return arith.FoldShift(op, in[0], in[1]) }
	case arith.ClassConvert:
		from, to, fixed := arith.ConvertWidths(op)
		if !fixed {
			is, ok := in[0].(stamp.IntegerStamp)
			if !ok {
				return fmt.Errorf("%s needs an integer stamp", op)
			}
			from, to = is.Bits(), c.Int(toFlag.Name)
			if to == 0 {
				return fmt.Errorf("%s needs --to", op)
			}
		}
		fold = func() stamp.Stamp { return arith.FoldConvert(op, from, to, in[0]) }
	}
	out, err := safeFold(op, fold)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, stamp.Format(out))
	return nil
}

// compatible 移位量可以与被移位的值宽度不同
func compatible(op arith.Op, x, y stamp.Stamp) bool {
	if op.Class() == arith.ClassShift {
		return x.Kind() == y.Kind()
	}
	return x.IsCompatible(y)
}

// safeFold 输入不合法时运算表会 panic，这里转成错误
func safeFold(op arith.Op, fold func() stamp.Stamp) (out stamp.Stamp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", op, r)
		}
	}()
	return fold(), nil
}
