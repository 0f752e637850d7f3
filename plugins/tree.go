package plugins

import (
	"fmt"

	"github.com/m1gwings/treedrawer/tree"
)

// RenderTree draws the dependency tree of the named plugin as ASCII art for
// operator inspection.
func (r *Resolver) RenderTree(name string) (string, error) {
	root, err := r.DependencyTree(name)
	if err != nil {
		return "", err
	}

	drawn := tree.NewTree(tree.NodeString(root.label()))
	addChildren(drawn, root)
	return drawn.String(), nil
}

func (n *TreeNode) label() string {
	if n.Circular {
		return fmt.Sprintf("%s (circular)", n.Name)
	}
	if n.Version == "" {
		return n.Name
	}
	return fmt.Sprintf("%s@%s", n.Name, n.Version)
}

func addChildren(drawn *tree.Tree, node *TreeNode) {
	for i, dep := range node.Dependencies {
		drawn.AddChild(tree.NodeString(dep.label()))
		child, err := drawn.Child(i)
		if err != nil {
			continue
		}
		addChildren(child, dep)
	}
}
