package rule

// Node 是规则表达式树的节点。它是一个封闭的变体集合：
// 只有本包内定义的类型实现了 node()，解释器对其做穷举匹配。
type Node interface {
	node()
}

// CompareOp 比较运算符。
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
)

// ArithOp 左折叠的算术运算符。
type ArithOp string

const (
	OpAdd ArithOp = "add"
	OpSub ArithOp = "sub"
	OpMul ArithOp = "mul"
	OpDiv ArithOp = "div"
	OpMod ArithOp = "mod"
)

// ExtremumOp 取最值的运算符。
type ExtremumOp string

const (
	OpMin ExtremumOp = "min"
	OpMax ExtremumOp = "max"
)

type (
	// And 所有子规则为真时为真；空列表为真。
	And struct{ Rules []Node }
	// Or 任一子规则为真时为真；空列表为假。
	Or struct{ Rules []Node }
	// Not 对一条子规则取反。
	Not struct{ Rule Node }
	// If 条件分支，Else 可以为 nil。
	If struct {
		Cond Node
		Then Node
		Else Node
	}
	Compare struct {
		Op          CompareOp
		Left, Right Node
	}
	// In 判断 Value 是否在 Array 中（Array 为字符串时做子串匹配）。
	In struct {
		Value Node
		Array Node
	}
	// Bang 对一个值取逻辑非（按真值规则）。
	Bang struct{ Value Node }
	// Var 点分路径变量引用，路径缺失时取 Default（若有）。
	Var struct {
		Path    string
		Default Node
	}
	Literal struct{ Value Value }
	// ListLit 字面量数组，元素可以是任意表达式。
	ListLit struct{ Items []Node }
	Cat     struct{ Args []Node }
	Substr  struct {
		Str    Node
		Start  Node
		Length Node
	}
	Merge    struct{ Args []Node }
	Extremum struct {
		Op   ExtremumOp
		Args []Node
	}
	Arith struct {
		Op   ArithOp
		Args []Node
	}
	// Unknown 是无法识别或形状不合法的节点，解释器对它放行（求值为 true）。
	Unknown struct {
		Operator string
		Raw      string
	}
)

func (And) node() {}
func (Or) node() {}
func (Not) node() {}
func (If) node() {}
func (Compare) node() {}
func (In) node() {}
func (Bang) node() {}
func (Var) node() {}
func (Literal) node() {}
func (ListLit) node() {}
func (Cat) node() {}
func (Substr) node() {}
func (Merge) node() {}
func (Extremum) node() {}
func (Arith) node() {}
func (Unknown) node() {}
