package main

import (
	"math"
	"strconv"

	"github.com/wippyai/mirror"
)

// The demo classes cover the binding surface end to end: plain fields,
// constructors at several arities, overload groups, nested objects, and
// slice members. Every console mode binds the same set.

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) *Point { return &Point{X: x, Y: y} }

func (p *Point) DistanceFromOrigin() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

type Calculator struct {
	Value float64
}

func NewCalculator(initial float64) *Calculator {
	return &Calculator{Value: initial}
}

func (c *Calculator) Add(x float64) float64 {
	c.Value += x
	return c.Value
}

func (c *Calculator) Subtract(x float64) float64 {
	c.Value -= x
	return c.Value
}

// Printer exports print and format as overload groups, so each variant
// lands under a type-suffixed name.
type Printer struct {
	LastOutput string
}

func (p *Printer) GetLast() string { return p.LastOutput }

func printInt(p *Printer, v int64) {
	p.LastOutput = "int: " + strconv.FormatInt(v, 10)
}

func printNumber(p *Printer, v float64) {
	p.LastOutput = "double: " + strconv.FormatFloat(v, 'f', -1, 64)
}

func printString(p *Printer, v string) {
	p.LastOutput = "string: " + v
}

func formatInts(p *Printer, a, b int64) string {
	return strconv.FormatInt(a, 10) + "," + strconv.FormatInt(b, 10)
}

func formatNumbers(p *Printer, a, b float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64) + ";" + strconv.FormatFloat(b, 'f', -1, 64)
}

func formatStrings(p *Printer, a, b string) string {
	return a + " + " + b
}

type Rectangle struct {
	Width  float64
	Height float64
	Name   string
}

func NewRectangle() *Rectangle {
	return &Rectangle{Name: "unnamed"}
}

func NewRectangleSized(w, h float64) *Rectangle {
	return &Rectangle{Width: w, Height: h, Name: "rectangle"}
}

func NewRectangleNamed(w, h float64, name string) *Rectangle {
	return &Rectangle{Width: w, Height: h, Name: name}
}

func (r *Rectangle) Area() float64      { return r.Width * r.Height }
func (r *Rectangle) Perimeter() float64 { return 2 * (r.Width + r.Height) }

type Address struct {
	Street string
	City   string
	Zip    int
}

type Person struct {
	Name    string
	Age     int
	Address Address
}

func NewPerson(name string, age int) *Person {
	return &Person{Name: name, Age: age}
}

func (p *Person) FullAddress() string {
	return p.Address.Street + ", " + p.Address.City + " " + strconv.Itoa(p.Address.Zip)
}

type Sequence struct {
	Numbers []int
	Names   []string
}

func (s *Sequence) Sum() int {
	total := 0
	for _, n := range s.Numbers {
		total += n
	}
	return total
}

func (s *Sequence) CountNames() int { return len(s.Names) }

func demoClasses() []*mirror.Class {
	return []*mirror.Class{
		mirror.NewClass[Point]("point",
			mirror.WithConstructor(NewPoint),
		),
		mirror.NewClass[Calculator]("calculator",
			mirror.WithConstructor(NewCalculator),
		),
		mirror.NewClass[Printer]("printer",
			mirror.WithOverloads("print", printInt, printNumber, printString),
			mirror.WithOverloads("format", formatInts, formatNumbers, formatStrings),
		),
		mirror.NewClass[Rectangle]("rectangle",
			mirror.WithConstructor(NewRectangle),
			mirror.WithConstructor(NewRectangleSized),
			mirror.WithConstructor(NewRectangleNamed),
		),
		mirror.NewClass[Person]("person",
			mirror.WithConstructor(NewPerson),
		),
		mirror.NewClass[Sequence]("sequence"),
	}
}
